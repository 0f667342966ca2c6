package workers

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChangeStreamWorker_Forwards_Inserts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockChangeStream(ctrl)
	reconciler := mocks.NewMockReconciler(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	msg := domain.Message{ID: 42, Author: "batch-job", Content: "report"}

	// Given a stream pushing one insert
	stream.EXPECT().Subscribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, onInsert func(domain.Message)) error {
			onInsert(msg)
			<-ctx.Done()
			return nil
		})
	observed := make(chan struct{})
	reconciler.EXPECT().Poll().Times(1)
	reconciler.EXPECT().Observe(msg).Do(func(domain.Message) { close(observed) }).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewChangeStreamWorker(log, stream, reconciler, 8).Run(ctx) }()

	// Then the insert reaches the reconciler
	select {
	case <-observed:
	case <-time.After(time.Second):
		req.Fail("insert was not observed")
	}

	// And the worker stops cleanly with its context
	cancel()
	req.NoError(<-done)
}

func TestChangeStreamWorker_Closed_Stream_Is_An_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockChangeStream(ctrl)
	reconciler := mocks.NewMockReconciler(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	stream.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(fmt.Errorf("subscription lost"))
	reconciler.EXPECT().Poll().Times(1)

	err := NewChangeStreamWorker(log, stream, reconciler, 8).Run(context.Background())

	req.ErrorContains(err, "subscription lost")
}

func TestChangeStreamWorker_Overflow_Falls_Back_To_Poll(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	stream := mocks.NewMockChangeStream(ctrl)
	reconciler := mocks.NewMockReconciler(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a burst larger than the buffer, pushed before anything is drained
	pushed := make(chan struct{})
	stream.EXPECT().Subscribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, onInsert func(domain.Message)) error {
			for i := 1; i <= 3; i++ {
				onInsert(domain.Message{ID: domain.MessageID(i)})
			}
			close(pushed)
			<-ctx.Done()
			return nil
		})
	polled := make(chan struct{})
	gomock.InOrder(
		reconciler.EXPECT().Poll().Do(func() { <-pushed }),
		reconciler.EXPECT().Poll().Do(func() { close(polled) }),
	)
	reconciler.EXPECT().Observe(gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewChangeStreamWorker(log, stream, reconciler, 1).Run(ctx) }()

	// Then the lost events are recovered by a poll instead of single observes
	select {
	case <-polled:
	case <-time.After(time.Second):
		req.Fail("overflow did not trigger a poll")
	}
}
