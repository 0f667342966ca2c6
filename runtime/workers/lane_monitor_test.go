package workers

import (
	"chat-relay/domain"
	"chat-relay/repositories/memory"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Write(context.Context, []byte) error { return nil }
func (nopTransport) Close() error                        { return nil }

func TestLaneMonitorWorker_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	hub := runtime.NewHub(slog.Default(), runtime.NewRegistry(), memory.NewMessageStore(0), nil, runtime.HubOptions{})
	defer func() { _ = hub.Shutdown(context.Background()) }()

	id := hub.Connect(nopTransport{}, domain.Session{})
	req.NoError(hub.Registry().SetIdentity(id, domain.Identity{UserID: "u-1", Username: "alice"}))
	hub.Connect(nopTransport{}, domain.Session{})

	stats := hub.Stats()
	req.Equal(2, stats.Connections)
	req.Equal(1, stats.Authenticated)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req.NoError(NewLaneMonitorWorker(slog.Default(), hub, 5*time.Millisecond, 1).Run(ctx))
}
