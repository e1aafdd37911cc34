package emitter

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

// MaxEventSize bounds one framed event on read.
const MaxEventSize = 1 << 20

// MsgpackStream writes events with length-prefix framing:
// 4 bytes big-endian length followed by the msgpack body.
// Host applications read it from a file, pipe or FIFO.
type MsgpackStream struct {
	instance string

	mu sync.Mutex
	w  io.Writer

	written atomic.Uint64
	errors  atomic.Uint64
}

// NewMsgpackStream writes framed events to w.
func NewMsgpackStream(w io.Writer, instance string) *MsgpackStream {
	return &MsgpackStream{w: w, instance: instance}
}

// OpenMsgpackStream appends framed events to path on fs.
func OpenMsgpackStream(fs afero.Fs, path, instance string) (*MsgpackStream, error) {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open msgpack stream: %w", err)
	}
	slog.Info("emitter: msgpack stream opened", "path", path)
	return NewMsgpackStream(f, instance), nil
}

// WriteEvent frames and writes one event.
func (m *MsgpackStream) WriteEvent(ev Event) error {
	body, err := msgpack.Marshal(ev)
	if err != nil {
		m.errors.Add(1)
		return fmt.Errorf("failed to marshal msgpack event: %w", err)
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(buf); err != nil {
		m.errors.Add(1)
		return fmt.Errorf("failed to write msgpack event: %w", err)
	}
	m.written.Add(1)
	return nil
}

// ReadEvent reads one framed event from r.
func ReadEvent(r io.Reader) (Event, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Event{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxEventSize {
		return Event{}, fmt.Errorf("msgpack event too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Event{}, fmt.Errorf("failed to read msgpack event: %w", err)
	}

	var ev Event
	if err := msgpack.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal msgpack event: %w", err)
	}
	return ev, nil
}

// OnPreview implements scheduler.Sink. Previews are not streamed.
func (m *MsgpackStream) OnPreview(scheduler.Preview) {}

// OnResult implements scheduler.Sink.
func (m *MsgpackStream) OnResult(r scheduler.Result) {
	if err := m.WriteEvent(FromResult(m.instance, r)); err != nil {
		slog.Warn("emitter: msgpack result dropped", "seq", r.Seq, "error", err)
	}
}

// OnError implements scheduler.Sink.
func (m *MsgpackStream) OnError(e scheduler.ErrorReport) {
	if err := m.WriteEvent(FromError(m.instance, e)); err != nil {
		slog.Warn("emitter: msgpack error report dropped", "title", e.Title, "error", err)
	}
}

// Stats returns written and failed event counts.
func (m *MsgpackStream) Stats() (written, failed uint64) {
	return m.written.Load(), m.errors.Load()
}

// Close closes the underlying writer if it is an io.Closer.
func (m *MsgpackStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
