package emitter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

// MQTTPublisher is the subset of mqtt.Client the emitter uses.
type MQTTPublisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures ConnectMQTT and the emitter topics.
type MQTTOptions struct {
	Broker   string // host:port
	ClientID string
	// Topic is the prefix; events go to {Topic}/results and {Topic}/errors.
	Topic     string
	ResultQoS byte
	ErrorQoS  byte
}

// ConnectMQTT connects to the broker with automatic reconnection.
func ConnectMQTT(opts MQTTOptions) (mqtt.Client, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)

	co.OnConnect = func(mqtt.Client) {
		slog.Info("emitter: mqtt connection established", "broker", opts.Broker, "client_id", opts.ClientID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect", "broker", opts.Broker, "error", err)
	}

	client := mqtt.NewClient(co)
	slog.Info("emitter: connecting to mqtt broker", "broker", opts.Broker)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}

// MQTTEmitter publishes JSON events to {prefix}/results and {prefix}/errors.
type MQTTEmitter struct {
	pub      MQTTPublisher
	opts     MQTTOptions
	instance string

	mu        sync.Mutex
	published map[string]uint64 // per topic
	errors    uint64
}

// NewMQTTEmitter creates an emitter over pub.
func NewMQTTEmitter(pub MQTTPublisher, opts MQTTOptions, instance string) *MQTTEmitter {
	return &MQTTEmitter{
		pub:       pub,
		opts:      opts,
		instance:  instance,
		published: make(map[string]uint64),
	}
}

// Publish sends one event to the topic for its type.
func (e *MQTTEmitter) Publish(ev Event) error {
	topic, qos := e.opts.Topic+"/results", e.opts.ResultQoS
	if ev.Type == TypeError {
		topic, qos = e.opts.Topic+"/errors", e.opts.ErrorQoS
	}

	if !e.pub.IsConnected() {
		e.fail()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.fail()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.pub.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.fail()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.fail()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: mqtt event published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

func (e *MQTTEmitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// OnPreview implements scheduler.Sink. Previews are not published.
func (e *MQTTEmitter) OnPreview(scheduler.Preview) {}

// OnResult implements scheduler.Sink.
func (e *MQTTEmitter) OnResult(r scheduler.Result) {
	if err := e.Publish(FromResult(e.instance, r)); err != nil {
		slog.Warn("emitter: mqtt result dropped", "seq", r.Seq, "error", err)
	}
}

// OnError implements scheduler.Sink.
func (e *MQTTEmitter) OnError(er scheduler.ErrorReport) {
	if err := e.Publish(FromError(e.instance, er)); err != nil {
		slog.Warn("emitter: mqtt error report dropped", "title", er.Title, "error", err)
	}
}

// MQTTStats contains emitter statistics.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a snapshot of the emitter counters.
func (e *MQTTEmitter) Stats() MQTTStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return MQTTStats{
		Connected: e.pub.IsConnected(),
		Published: published,
		Errors:    e.errors,
	}
}

// Close disconnects the client if the emitter owns one.
func (e *MQTTEmitter) Close() error {
	if c, ok := e.pub.(interface{ Disconnect(quiesce uint) }); ok {
		c.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	return nil
}
