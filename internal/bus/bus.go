// Package bus wraps an MQTT broker connection as the message transport to
// and from faculty desk units (§6): publish/subscribe, automatic
// reconnection with backoff, re-subscription and queue flush on reconnect,
// a bounded outbound queue that drops the oldest message on overflow, and
// coalescing of rapid publishes into small batches.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/telemetry"
)

// Message is a single outbound publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handler processes an inbound message for a subscribed topic.
type Handler func(topic string, payload []byte)

// Stats is a point-in-time snapshot of the client's transport counters.
type Stats struct {
	Published     uint64
	Received      uint64
	PublishErrors uint64
	Dropped       uint64
	QueueDepth    int
	LastError     string
	LastPing      time.Time
}

// Client manages the MQTT connection and the outbound publish queue.
type Client struct {
	cfg    config.BrokerConfig
	logger *slog.Logger
	client mqtt.Client

	outbound chan Message
	handlers map[string]Handler
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a bus Client. Call Connect to establish the broker connection
// and start the publish worker.
func New(cfg config.BrokerConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		outbound: make(chan Message, cfg.QueueCapacity),
		handlers: make(map[string]Handler),
		stopCh:   make(chan struct{}),
	}
}

// Connect opens the broker connection with auto-reconnect enabled and
// starts the background publish worker. Subscriptions registered via
// Subscribe before Connect are (re-)established on every successful connect,
// including reconnects.
func (c *Client) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.URL()).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Duration(c.cfg.ReconnectMaxDelay) * time.Second).
		SetConnectionLostHandler(c.onConnectionLost).
		SetOnConnectHandler(c.onConnect).
		SetKeepAlive(30 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return errs.New(errs.KindBusUnavail, "broker_connect_timeout", "timed out connecting to message broker")
	}
	if err := token.Error(); err != nil {
		return errs.Wrap(errs.KindBusUnavail, "broker_connect", fmt.Errorf("connecting to broker: %w", err))
	}

	c.wg.Add(1)
	go c.runPublishWorker(ctx)
	return nil
}

// Disconnect stops the publish worker and tears down the broker connection.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	if c.client != nil {
		c.client.Disconnect(250)
	}
}

// Subscribe registers a handler for topic, to be (re-)applied on connect.
func (c *Client) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	c.handlers[topic] = h
	c.mu.Unlock()
	if c.client != nil && c.client.IsConnectionOpen() {
		c.subscribeOne(topic, h)
	}
}

func (c *Client) subscribeOne(topic string, h Handler) {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		c.statsMu.Lock()
		c.stats.Received++
		c.statsMu.Unlock()
		h(m.Topic(), m.Payload())
	})
	go func() {
		if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
			c.logger.Error("subscribing to topic", "topic", topic, "error", token.Error())
		}
	}()
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.logger.Info("bus connected", "broker", c.cfg.URL())
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, h := range c.handlers {
		c.subscribeOne(topic, h)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("bus connection lost", "error", err)
	c.statsMu.Lock()
	c.stats.LastError = err.Error()
	c.statsMu.Unlock()
}

// Publish enqueues a message for the background worker. If the outbound
// queue is full, the oldest queued message is dropped to make room,
// matching the bounded-queue-with-oldest-drop policy in §6.
func (c *Client) Publish(topic string, payload []byte, retained bool) {
	msg := Message{Topic: topic, Payload: payload, Retained: retained}
	select {
	case c.outbound <- msg:
	default:
		select {
		case <-c.outbound:
			c.statsMu.Lock()
			c.stats.Dropped++
			c.statsMu.Unlock()
			telemetry.BusDropped.WithLabelValues(topic).Inc()
		default:
		}
		select {
		case c.outbound <- msg:
		default:
			c.statsMu.Lock()
			c.stats.Dropped++
			c.statsMu.Unlock()
			telemetry.BusDropped.WithLabelValues(topic).Inc()
		}
	}
	telemetry.BusQueueDepth.Set(float64(len(c.outbound)))
}

// runPublishWorker drains the outbound queue, coalescing up to BatchSize
// messages or BatchWindowMillis of accumulation before publishing each,
// whichever comes first; MQTT has no native multi-message publish, so
// "batching" bounds how long a message waits behind others rather than
// merging wire frames.
func (c *Client) runPublishWorker(ctx context.Context) {
	defer c.wg.Done()
	window := time.Duration(c.cfg.BatchWindowMillis) * time.Millisecond
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	batch := make([]Message, 0, c.cfg.BatchSize)
	flush := func() {
		for _, m := range batch {
			c.publishNow(m)
		}
		batch = batch[:0]
	}

	for {
		select {
		case m := <-c.outbound:
			batch = append(batch, m)
			telemetry.BusQueueDepth.Set(float64(len(c.outbound)))
			if len(batch) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.stopCh:
			flush()
			return
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (c *Client) publishNow(m Message) {
	if c.client == nil || !c.client.IsConnectionOpen() {
		c.statsMu.Lock()
		c.stats.PublishErrors++
		c.stats.LastError = "not connected"
		c.statsMu.Unlock()
		return
	}
	token := c.client.Publish(m.Topic, 1, m.Retained, m.Payload)
	go func() {
		ok := token.WaitTimeout(10 * time.Second)
		c.statsMu.Lock()
		defer c.statsMu.Unlock()
		c.stats.LastPing = time.Now()
		if !ok || token.Error() != nil {
			c.stats.PublishErrors++
			if token.Error() != nil {
				c.stats.LastError = token.Error().Error()
			}
			return
		}
		c.stats.Published++
		telemetry.BusPublished.WithLabelValues(m.Topic).Inc()
	}()
}

// Snapshot returns the current transport statistics.
func (c *Client) Snapshot() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s := c.stats
	s.QueueDepth = len(c.outbound)
	return s
}

// Connected reports whether the broker connection is currently open.
func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}
