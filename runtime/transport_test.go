package runtime

import (
	"chat-relay/domain"
	"chat-relay/protocol"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// fakeTransport records frames. A non-nil gate makes Write block until the
// gate is closed, ignoring the context like a stuck socket would.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	gate   chan struct{}
	fail   error
	closed atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func newStuckTransport(t *testing.T) *fakeTransport {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	return &fakeTransport{gate: gate}
}

func (f *fakeTransport) Write(_ context.Context, frame []byte) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransport) messages() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, frame := range f.frames {
		msg, _, err := protocol.Decode(frame)
		if err == nil && msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

func (f *fakeTransport) notices() []domain.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notice
	for _, frame := range f.frames {
		_, notice, err := protocol.Decode(frame)
		if err == nil && notice != nil {
			out = append(out, *notice)
		}
	}
	return out
}

func (f *fakeTransport) ids() []domain.MessageID {
	return lo.Map(f.messages(), func(m domain.Message, _ int) domain.MessageID { return m.ID })
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
