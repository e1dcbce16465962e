package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/sensor"
)

const mqttDisconnectQuiesce = 250 // milliseconds

// ErrTopicMismatch is returned when a message topic does not fit the subscription pattern
var ErrTopicMismatch = errors.New("topic does not match subscription")

// Subscriber feeds samples published over MQTT into the ingest handler.
// The sensor ID is taken from the single-level wildcard of the topic,
// e.g. "sensors/no2-01/samples" for the pattern "sensors/+/samples".
type Subscriber struct {
	cfg     config.MQTTConfig
	handler *Handler
	client  mqtt.Client
}

// NewSubscriber creates a subscriber. Nothing connects until Run.
func NewSubscriber(cfg config.MQTTConfig, handler *Handler) *Subscriber {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	})

	s := &Subscriber{cfg: cfg, handler: handler}
	// Resubscribe after every (re)connect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(cfg.Topic, cfg.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("mqtt subscribed")
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Run connects to the broker and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.Broker, token.Error())
	}

	<-ctx.Done()

	if token := s.client.Unsubscribe(s.cfg.Topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		log.Warn().Err(token.Error()).Msg("mqtt unsubscribe failed")
	}
	s.client.Disconnect(mqttDisconnectQuiesce)
	log.Info().Msg("mqtt subscriber stopped")
	return nil
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	samples, err := ParseMessage(s.cfg.Topic, msg.Topic(), msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping mqtt message")
		return
	}

	if err := s.handler.Ingest(context.Background(), "mqtt", samples); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic()).Int("samples", len(samples)).Msg("mqtt ingest failed")
	}
}

// ParseMessage decodes an MQTT payload holding one sample or an array of
// samples. Every sample is attributed to the sensor named by the topic.
func ParseMessage(pattern, topic string, payload []byte) ([]sensor.Sample, error) {
	sensorID, err := TopicSensor(pattern, topic)
	if err != nil {
		return nil, err
	}

	payload = bytes.TrimSpace(payload)
	var samples []sensor.Sample
	if len(payload) > 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &samples); err != nil {
			return nil, fmt.Errorf("invalid sample array: %w", err)
		}
	} else {
		var s sensor.Sample
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("invalid sample: %w", err)
		}
		samples = []sensor.Sample{s}
	}

	for i := range samples {
		samples[i].SensorID = sensorID
	}
	return samples, nil
}

// TopicSensor returns the topic level matched by the first "+" of pattern.
func TopicSensor(pattern, topic string) (string, error) {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, topic, pattern)
	}

	id := ""
	for i, level := range want {
		switch {
		case level == "+":
			if id == "" {
				id = got[i]
			}
		case level != got[i]:
			return "", fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, topic, pattern)
		}
	}
	if id == "" {
		return "", fmt.Errorf("%w: no sensor level in %q", ErrTopicMismatch, topic)
	}
	return id, nil
}
