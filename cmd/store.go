package main

import (
	"chat-relay/contract"
	"chat-relay/repositories"
	"chat-relay/repositories/memory"
	"chat-relay/repositories/redisfeed"
	"chat-relay/repositories/sqlite"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// stores gathers what the relay needs from the storage layer.
// stream and head are nil when the driver cannot provide them.
type stores struct {
	messages contract.MessageStore
	stream   contract.ChangeStream
	head     contract.HeadReader
	users    repositories.IUserRepository
	closers  []func() error
}

func (s *stores) Close(log *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("Close failed", "error", err)
		}
	}
}

// openStores opens the message store named by STORE_DRIVER. Users always
// live in badger, in memory when the messages do.
func openStores(ctx context.Context, config Config, log *slog.Logger) (*stores, error) {
	s := &stores{}

	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	if config.StoreDriver == "memory" {
		options = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	s.closers = append(s.closers, func() error {
		log.Info("Closing BadgerDB...")
		return db.Close()
	})
	s.users = repositories.NewUserRepository(db)

	switch config.StoreDriver {
	case "badger":
		repo, err := repositories.NewMessageRepository(db, log, config.LimitMessages)
		if err != nil {
			s.Close(log)
			return nil, err
		}
		s.closers = append(s.closers, repo.Close)
		s.messages, s.stream, s.head = repo, repo, repo
	case "sqlite":
		store, err := sqlite.Open(config.SqlitePath, limit(config.LimitMessages))
		if err != nil {
			s.Close(log)
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		s.messages, s.head = store, store
	case "memory":
		store := memory.NewMessageStore(limit(config.LimitMessages))
		s.messages, s.stream, s.head = store, store, store
	default:
		s.Close(log)
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (badger, sqlite, memory)", config.StoreDriver)
	}

	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			s.Close(log)
			return nil, fmt.Errorf("redis %s: %w", config.RedisAddr, err)
		}
		s.closers = append(s.closers, client.Close)
		feed := redisfeed.NewFeed(log, s.messages, client, config.RedisChannel)
		s.closers = append(s.closers, feed.Close)
		// Every instance, and any other writer, is seen through the channel
		s.messages, s.stream = feed, feed
		log.Info("Redis change feed enabled", "address", config.RedisAddr, "channel", config.RedisChannel)
	}

	log.Info("Message store ready", "driver", config.StoreDriver, "change_stream", s.stream != nil)
	return s, nil
}

func limit(limitMessages *int) int {
	if limitMessages == nil {
		return 0
	}
	return *limitMessages
}
