package emitter

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t fakeToken) Wait() bool                     { return !t.timeout }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t fakeToken) Error() error                   { return t.err }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	connected    bool
	token        fakeToken
	calls        []publishCall
	disconnected bool
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.calls = append(f.calls, publishCall{topic, qos, payload.([]byte)})
	return f.token
}

func (f *fakeMQTT) Disconnect(quiesce uint) { f.disconnected = true }

func TestMQTTEmitter(t *testing.T) {
	pub := &fakeMQTT{connected: true}
	e := NewMQTTEmitter(pub, MQTTOptions{Topic: "codescan/lobby", ResultQoS: 1, ErrorQoS: 0}, "lobby")

	e.OnPreview(scheduler.Preview{})
	e.OnResult(result())
	e.OnError(report())

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "codescan/lobby/results", pub.calls[0].topic)
	assert.Equal(t, byte(1), pub.calls[0].qos)
	assert.Equal(t, "codescan/lobby/errors", pub.calls[1].topic)
	assert.Equal(t, byte(0), pub.calls[1].qos)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.calls[0].payload, &got))
	assert.Equal(t, "https://example.com/ticket/7", got["code"])
	assert.Equal(t, "left invert", got["imageType"])

	st := e.Stats()
	assert.True(t, st.Connected)
	assert.Equal(t, uint64(1), st.Published["codescan/lobby/results"])
	assert.Equal(t, uint64(1), st.Published["codescan/lobby/errors"])
	assert.Zero(t, st.Errors)

	require.NoError(t, e.Close())
	assert.True(t, pub.disconnected)
}

func TestMQTTEmitterFailures(t *testing.T) {
	pub := &fakeMQTT{connected: false}
	e := NewMQTTEmitter(pub, MQTTOptions{Topic: "codescan"}, "lobby")

	// Scenario: broker down, nothing published
	assert.EqualError(t, e.Publish(FromResult("lobby", result())), "mqtt not connected")
	assert.Empty(t, pub.calls)

	// Scenario: publish never acknowledged
	pub.connected = true
	pub.token = fakeToken{timeout: true}
	assert.EqualError(t, e.Publish(FromResult("lobby", result())), "publish timeout")

	// Scenario: broker rejects
	pub.token = fakeToken{err: errors.New("not authorized")}
	assert.ErrorContains(t, e.Publish(FromResult("lobby", result())), "not authorized")

	assert.Equal(t, uint64(3), e.Stats().Errors)
	assert.Empty(t, e.Stats().Published)
}
