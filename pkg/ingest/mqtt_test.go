package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/storage"
	"github.com/nicktill/gasqc/pkg/storage/memory"
)

const testPattern = "sensors/+/samples"

// fakeMessage implements mqtt.Message
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestTopicSensor(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    string
		wantErr bool
	}{
		{testPattern, "sensors/no2-01/samples", "no2-01", false},
		{"site/lab/+/+", "site/lab/co/raw", "co", false},
		{testPattern, "sensors/no2-01/status", "", true},
		{testPattern, "sensors/no2-01/samples/extra", "", true},
		{testPattern, "sensors//samples", "", true},
		{"sensors/fixed", "sensors/fixed", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := TopicSensor(tt.pattern, tt.topic)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrTopicMismatch))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage_Single(t *testing.T) {
	payload := []byte(`{"timestamp":"2024-03-01T10:00:00Z","value":12.5}`)

	samples, err := ParseMessage(testPattern, "sensors/no2/samples", payload)

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "no2", samples[0].SensorID)
	assert.Equal(t, 12.5, samples[0].Value.Float())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), samples[0].Timestamp.UTC())
}

func TestParseMessage_Array(t *testing.T) {
	payload := []byte(` [
		{"sensor_id":"other","timestamp":"2024-03-01T10:00:00Z","value":1},
		{"timestamp":"2024-03-01T10:15:00Z","value":null}
	]`)

	samples, err := ParseMessage(testPattern, "sensors/co/samples", payload)

	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "co", samples[0].SensorID, "the topic names the sensor")
	assert.True(t, samples[1].Value.IsNull())
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := ParseMessage(testPattern, "sensors/co/samples", []byte("12.5"))
	assert.Error(t, err)

	_, err = ParseMessage(testPattern, "sensors/co/samples", []byte("[{"))
	assert.Error(t, err)

	_, err = ParseMessage(testPattern, "other/co", []byte("{}"))
	assert.True(t, errors.Is(err, ErrTopicMismatch))
}

func TestSubscriber_HandleMessage(t *testing.T) {
	store := memory.New()
	handler := NewHandler(store, staticRegistry{"no2": true}, nil, nil)
	sub := NewSubscriber(config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "test",
		Topic:    testPattern,
	}, handler)

	sub.handleMessage(nil, fakeMessage{
		topic:   "sensors/no2/samples",
		payload: []byte(`[{"timestamp":"2024-03-01T10:00:00Z","value":1},{"timestamp":"2024-03-01T10:15:00Z","value":2}]`),
	})
	// Unknown sensor and garbage are dropped without panicking
	sub.handleMessage(nil, fakeMessage{topic: "sensors/so2/samples", payload: []byte(`{"timestamp":"2024-03-01T10:00:00Z","value":1}`)})
	sub.handleMessage(nil, fakeMessage{topic: "sensors/no2/samples", payload: []byte(`nope`)})

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalSamples)

	samples, err := store.Query(context.Background(), storage.QueryRequest{SensorIDs: []string{"no2"}})
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}
