package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// LineHandler stores one live line of a station. *Ingester satisfies it.
type LineHandler interface {
	IngestLine(ctx context.Context, stationID, line string) error
}

// SubscriberConfig configures the MQTT push feed. Loggers publish raw live
// lines to "<TopicPrefix>/<station id>/live".
type SubscriberConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// Subscriber ingests live lines pushed over MQTT.
type Subscriber struct {
	client  mqtt.Client
	cfg     SubscriberConfig
	handler LineHandler
	logger  *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber prepares an MQTT client; Connect starts the subscription.
func NewSubscriber(cfg SubscriberConfig, handler LineHandler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "weather-observatory"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")

	s := &Subscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Topic is the wildcard subscription covering every station.
func (s *Subscriber) Topic() string {
	return s.cfg.TopicPrefix + "/+/live"
}

// Connect connects to the broker and subscribes to the live topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	sub := s.client.Subscribe(s.Topic(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !sub.WaitTimeout(5 * time.Second) {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe timeout for topic %s", s.Topic())
	}
	if err := sub.Error(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe to %s: %w", s.Topic(), err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", s.Topic())
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	stationID, ok := s.stationFromTopic(topic)
	if !ok {
		s.logger.Warn("ignoring mqtt message on unexpected topic", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.handler.IngestLine(ctx, stationID, string(payload)); err != nil {
		s.logger.Warn("mqtt live line rejected", "station", stationID, "error", err)
		return
	}
	s.logger.Debug("processed mqtt live line", "station", stationID, "size", len(payload))
}

func (s *Subscriber) stationFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, s.cfg.TopicPrefix+"/")
	if !ok {
		return "", false
	}
	stationID, ok := strings.CutSuffix(rest, "/live")
	if !ok || stationID == "" || strings.Contains(stationID, "/") {
		return "", false
	}
	return stationID, true
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// It is safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		s.client.Unsubscribe(s.Topic()).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
