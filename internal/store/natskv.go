package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSKVConfig holds configuration for the JetStream-backed store.
type NATSKVConfig struct {
	URL           string
	Bucket        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSKVConfig returns the default JetStream store configuration.
func DefaultNATSKVConfig() NATSKVConfig {
	return NATSKVConfig{
		URL:           nats.DefaultURL,
		Bucket:        "quizwar-rooms",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSKV implements Store on top of a JetStream key/value bucket.
// Bucket revisions provide the per-document compare-and-swap the
// engine's guarded transitions depend on.
type NATSKV struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATSKV connects to NATS and creates or binds the room bucket.
func NewNATSKV(ctx context.Context, config NATSKVConfig) (*NATSKV, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "quizwar room documents",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create KV bucket %q: %w", config.Bucket, err)
	}

	return &NATSKV{nc: nc, kv: kv}, nil
}

// Close shuts down the underlying NATS connection.
func (s *NATSKV) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

func (s *NATSKV) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("kv create %q: %w", key, err)
	}
	return rev, nil
}

func (s *NATSKV) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("kv get %q: %w", key, err)
	}
	return entry.Value(), entry.Revision(), nil
}

func (s *NATSKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, ErrConflict
		}
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("kv update %q: %w", key, err)
	}
	return rev, nil
}

func (s *NATSKV) Delete(ctx context.Context, key string) error {
	if err := s.kv.Purge(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("kv purge %q: %w", key, err)
	}
	return nil
}

func (s *NATSKV) Watch(ctx context.Context, key string) (Watcher, error) {
	kw, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("kv watch %q: %w", key, err)
	}

	w := &natsWatcher{kw: kw, ch: make(chan Entry, 32)}
	go w.pump()
	return w, nil
}

// isWrongLastSequence reports whether a KV update failed because the
// expected revision was stale.
func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

type natsWatcher struct {
	kw jetstream.KeyWatcher
	ch chan Entry
}

func (w *natsWatcher) pump() {
	defer close(w.ch)
	for entry := range w.kw.Updates() {
		if entry == nil {
			// Marker that the initial values have been delivered.
			continue
		}
		e := Entry{
			Value:    entry.Value(),
			Revision: entry.Revision(),
			Deleted:  entry.Operation() != jetstream.KeyValuePut,
		}
		select {
		case w.ch <- e:
		default:
			// Slow consumer: drop the oldest buffered entry so the
			// latest document always gets through.
			select {
			case <-w.ch:
			default:
			}
			w.ch <- e
		}
	}
}

func (w *natsWatcher) Updates() <-chan Entry {
	return w.ch
}

func (w *natsWatcher) Stop() {
	if err := w.kw.Stop(); err != nil {
		log.Debug().Err(err).Msg("stopping key watcher")
	}
}
