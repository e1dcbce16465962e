// Package export writes analysis tables out of gasqc and reads raw samples in.
//
// # Tables
//
// Every analysis run produces three tables, each exportable as JSON or CSV:
//   - points: one row per resampled point with its tag, diff and derived value
//   - hourly: one row per clock hour with mean, std, validity ratio, tag and quantile bounds
//   - summary: tag counts and percentages for both levels, each ending with a TOTAL row
//
// Absent values are written as null in JSON and as empty cells in CSV.
//
// # HTTP API
//
// Export endpoint: GET /v1/sensors/{id}/export
// Query parameters:
//   - table: points, hourly, summary or samples (default: points)
//   - format: json or csv (default: json)
//   - start, end: RFC3339; given either, the sensor is re-analyzed over that range
//
// Example:
//
//	curl "http://localhost:8080/v1/sensors/no2-01/export?table=hourly&format=csv" -o hourly.csv
//
// table=samples returns a JSON backup of the raw stored samples, which the
// import endpoint accepts back.
//
// Import endpoint: POST /v1/sensors/{id}/import
//
//	curl -X POST "http://localhost:8080/v1/sensors/no2-01/import" \
//	  -H "Content-Type: text/csv" --data-binary @logger.csv
//
// CSV imports use the sensor logger layout:
//
//	Year,Month,Day,Hour,Minute,Second,Value,Latitude,Longitude,Altitude,Device,DeviceSt,SensorID
//	2023,5,14,10,15,0,23.4,-34.6,-58.4,25,7,0,3
//
// Rows dated on or before 2020-01-01 or in the future are skipped and listed
// in the result. Samples are written in batches of 5,000.
package export
