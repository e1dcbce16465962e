/*
Package compaction reduces a tagged series to one row per clock hour.

Only VALID points contribute. The covered range runs from the hour of the first VALID point to
the hour of the last one, and every hour in between is emitted even when it holds no VALID point
at all, so a consumer can see exactly where coverage dropped.

# Hourly rows

For each hour the aggregator keeps:

	Count          number of VALID points in the hour
	Mean           arithmetic mean of their values (NaN when Count is 0)
	Std            sample standard deviation, n-1 (NaN when Count < 2)
	ExpectedCount  1h / sampling period
	ValidityRatio  Count / ExpectedCount * 100

An hour is tagged VALID when ValidityRatio >= 75, LOWSAMPLES otherwise.

Example with a 15m sampling period (4 expected points per hour):

	10:00  10   VALID
	10:15  20   VALID
	10:30  30   VALID
	10:45  40   VALID
	11:00  99   GTUL
	11:15  12   VALID

	10:00  mean=25  count=4  ratio=100  VALID
	11:00  mean=12  count=1  ratio=25   LOWSAMPLES

Rows are labelled at the middle of the hour (10:30, 11:30) for display. Start holds the hour
boundary and is what every later stage computes with.

The quantile columns are left NaN here; pkg/anomaly fills them in.
*/
package compaction
