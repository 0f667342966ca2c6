package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	relaygrpc "chat-relay/grpc"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/transport"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes run.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Storage
	st, err := openStores(ctx, config, log)
	if err != nil {
		return err
	}
	defer st.Close(log)

	// 4. Hub, resync engine and services
	censor, err := newCensor(config, log)
	if err != nil {
		return err
	}
	hub := runtime.NewHub(log, runtime.NewRegistry(), st.messages, censor, runtime.HubOptions{
		EchoToSender:     config.EchoToSender,
		SendTimeout:      config.SendTimeout,
		QueueSize:        config.QueueSize,
		MaxContentLength: config.MaxContentLength,
	})
	resync := runtime.NewResync(log, hub, st.messages, runtime.ResyncOptions{
		MaxAttempts:    config.ResyncMaxAttempts,
		InitialBackoff: config.ResyncInitialBackoff,
		MaxBackoff:     config.ResyncMaxBackoff,
	})

	secret, err := tokenSecret(config.AuthTokenSecret)
	if err != nil {
		return err
	}
	sessions := services.NewSessionService(log,
		auth.NewGateway(st.users, auth.DefaultParams),
		hub.Registry(),
		auth.NewTokenIssuer(secret, config.AuthTokenDuration))
	chat := services.NewChatService(log, hub, sessions, st.head, services.ChatOptions{
		WelcomeMessage: config.WelcomeMessage,
		HistoryLimit:   config.HistoryLimit,
	})

	// 5. gRPC health
	var health *relaygrpc.HealthServer
	errChan := make(chan error, 2)
	if config.GrpcPort > 0 {
		address := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", address, err)
		}
		health = relaygrpc.NewHealthServer(log)
		go func() {
			if err := health.Serve(listener); err != nil {
				errChan <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	// 6. Supervised workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewResyncPollerWorker(log, resync, config.ResyncInterval),
		workers.NewLaneMonitorWorker(log, hub, config.LaneMonitorInterval, config.LaneWarnThreshold),
	)
	if st.stream != nil {
		sup.Add(workers.NewChangeStreamWorker(log, st.stream, resync, config.ChangeStreamBuffer))
	}
	if health != nil && st.head != nil {
		sup.Add(workers.NewHealthProbeWorker(log, st.head, health, config.HealthInterval))
	} else if health != nil {
		health.SetServing(true)
	}
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	handler := transport.NewHandler(log, chat, transport.Options{
		MaxFrameSize:   config.MaxFrameSize,
		PongWait:       config.PongWait,
		WriteTimeout:   config.SendTimeout,
		AllowedOrigins: internal.List(config.AllowedOrigins),
	})
	server := &http.Server{
		Addr:              address,
		Handler:           transport.NewRouter(handler, st.head),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failed, shutting down", "error", runErr)
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn("Hub shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	if health != nil {
		health.GracefulStop()
	}
	log.Info("Program stopped cleanly")
	return runErr
}

// newCensor returns nil when no word is configured, the hub then skips moderation.
func newCensor(config Config, log *slog.Logger) (contract.Censor, error) {
	words := internal.List(config.ModerationWords)
	if len(words) == 0 {
		return nil, nil
	}
	char, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(words, char, log)
	if err != nil {
		return nil, err
	}
	return moderator, nil
}

func tokenSecret(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
