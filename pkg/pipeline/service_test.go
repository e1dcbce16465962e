package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/ingest"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
	"github.com/nicktill/gasqc/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu     sync.Mutex
	runs   map[string]int
	errors map[string]int
	points map[string]map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		runs:   map[string]int{},
		errors: map[string]int{},
		points: map[string]map[string]int{},
	}
}

func (f *fakeRecorder) RecordRun(id string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.errors[id]++
		return
	}
	f.runs[id]++
}

func (f *fakeRecorder) RecordPointTags(id string, counts map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[id] = counts
}

func (f *fakeRecorder) RecordHourlyTags(string, map[string]int) {}

type fakeNotifier struct {
	mu     sync.Mutex
	events []ingest.Event
}

func (f *fakeNotifier) Broadcast(e ingest.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeArchiver struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, res *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, res.RunID)
	return f.err
}

type failingStore struct {
	storage.Storage
}

func (failingStore) Query(context.Context, storage.QueryRequest) ([]sensor.Sample, error) {
	return nil, errors.New("disk on fire")
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, storage.Storage) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Write(context.Background(), threeHours("no2")))
	require.NoError(t, store.Write(context.Background(), threeHours("o3")))

	svc, err := NewService(store, []sensor.Config{testConfig("no2"), testConfig("o3")}, anomaly.DefaultOptions(), opts...)
	require.NoError(t, err)
	return svc, store
}

func TestNewService_DuplicateSensor(t *testing.T) {
	_, err := NewService(memory.New(), []sensor.Config{testConfig("a"), testConfig("a")}, anomaly.DefaultOptions())
	assert.ErrorIs(t, err, sensor.ErrInvalidConfig)
}

func TestNewService_InvalidSensorFailsFast(t *testing.T) {
	bad := testConfig("b")
	bad.MolarMass = 0
	_, err := NewService(memory.New(), []sensor.Config{testConfig("a"), bad}, anomaly.DefaultOptions())
	assert.ErrorIs(t, err, sensor.ErrInvalidConfig)
}

func TestService_Analyze(t *testing.T) {
	rec := newFakeRecorder()
	notifier := &fakeNotifier{}
	archiver := &fakeArchiver{}
	svc, _ := newTestService(t, WithRecorder(rec), WithNotifier(notifier), WithArchiver(archiver))

	res, err := svc.Analyze(context.Background(), "no2", base, base.Add(3*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 12, res.PointSummary.Total())
	assert.Equal(t, 1, rec.runs["no2"])
	assert.Equal(t, 9, rec.points["no2"]["VALID"])

	require.Len(t, notifier.events, 1)
	assert.Equal(t, ingest.EventAnalysisComplete, notifier.events[0].Type)
	assert.Equal(t, "no2", notifier.events[0].SensorID)

	assert.Equal(t, []string{res.RunID}, archiver.runs)

	latest, ok := svc.Latest("no2")
	require.True(t, ok)
	assert.Equal(t, res.RunID, latest.RunID)
}

func TestService_AnalyzeTimeWindow(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Analyze(context.Background(), "no2", base, base.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, res.PointSummary.Total())
}

func TestService_AnalyzeUnknownSensor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Analyze(context.Background(), "ch4", base, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnknownSensor)
	assert.False(t, svc.Known("ch4"))
	assert.True(t, svc.Known("o3"))
}

func TestService_ArchiveFailureDoesNotFailRun(t *testing.T) {
	svc, _ := newTestService(t, WithArchiver(&fakeArchiver{err: errors.New("bucket gone")}))

	_, err := svc.Analyze(context.Background(), "o3", base, base.Add(3*time.Hour))
	assert.NoError(t, err)
}

func TestService_AnalyzeAll(t *testing.T) {
	rec := newFakeRecorder()
	svc, _ := newTestService(t, WithRecorder(rec), WithWorkers(2))

	results, err := svc.AnalyzeAll(context.Background(), base, base.Add(3*time.Hour))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "no2", results[0].SensorID)
	assert.Equal(t, "o3", results[1].SensorID)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 12, r.Result.PointSummary.Total())
	}
	assert.Equal(t, 1, rec.runs["no2"])
	assert.Equal(t, 1, rec.runs["o3"])
}

func TestService_AnalyzeAllStorageFailure(t *testing.T) {
	rec := newFakeRecorder()
	svc, err := NewService(failingStore{}, []sensor.Config{testConfig("no2")}, anomaly.DefaultOptions(), WithRecorder(rec))
	require.NoError(t, err)

	results, err := svc.AnalyzeAll(context.Background(), base, base.Add(time.Hour))
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, rec.errors["no2"])
}

func TestService_SensorsInConfigOrder(t *testing.T) {
	svc, _ := newTestService(t)

	sensors := svc.Sensors()
	require.Len(t, sensors, 2)
	assert.Equal(t, "no2", sensors[0].ID)
	assert.Equal(t, "o3", sensors[1].ID)
}
