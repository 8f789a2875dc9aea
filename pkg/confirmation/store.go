package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/metrics"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store stages proposals of one variant until a single approve or reject.
type Store[T Payload] struct {
	repo  Repository
	clock utils.Clock
	kind  Kind
}

func NewStore[T Payload](repo Repository, clock utils.Clock) *Store[T] {
	var zero T
	return &Store[T]{repo: repo, clock: clock, kind: zero.Kind()}
}

func (s *Store[T]) Kind() Kind {
	return s.kind
}

// Stage persists payload and returns a random token; tokens never depend on payload content.
func (s *Store[T]) Stage(ctx context.Context, payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not encode %s confirmation: %w", s.kind, err)
	}
	token := uuid.NewString()
	record := Record{ID: token, Data: data, CreatedAt: s.clock.Now().Unix()}
	if err := s.repo.Insert(ctx, s.kind, record); err != nil {
		return "", err
	}
	metrics.ConfirmationsTotal.WithLabelValues(string(s.kind), "staged").Inc()
	return token, nil
}

func (s *Store[T]) Get(ctx context.Context, token string) (T, error) {
	record, err := s.repo.Get(ctx, s.kind, token)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.decode(record)
}

// Commit takes the staged payload and hands it to apply. Only one caller can take a token;
// every other caller gets ErrNotFound. When apply fails the record is put back unchanged
// so the approval can be retried.
func (s *Store[T]) Commit(ctx context.Context, token string, apply func(ctx context.Context, payload T) error) (T, error) {
	var zero T
	record, err := s.repo.Take(ctx, s.kind, token)
	if err != nil {
		return zero, err
	}

	payload, err := s.decode(record)
	if err != nil {
		s.restore(ctx, record)
		return zero, err
	}

	if err := apply(ctx, payload); err != nil {
		s.restore(ctx, record)
		return zero, err
	}
	metrics.ConfirmationsTotal.WithLabelValues(string(s.kind), "committed").Inc()
	return payload, nil
}

func (s *Store[T]) restore(ctx context.Context, record Record) {
	// The caller's context may already be cancelled; the record must not be lost with it.
	restoreCtx := context.WithoutCancel(ctx)
	if err := s.repo.Insert(restoreCtx, s.kind, record); err != nil {
		log.Errorf("could not restore %s confirmation %s, proposal lost: %v", s.kind, record.ID, err)
		return
	}
	metrics.ConfirmationsTotal.WithLabelValues(string(s.kind), "restored").Inc()
}

// Reject removes the staged payload without applying it.
func (s *Store[T]) Reject(ctx context.Context, token string) error {
	deleted, err := s.repo.Delete(ctx, s.kind, token)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	metrics.ConfirmationsTotal.WithLabelValues(string(s.kind), "rejected").Inc()
	return nil
}

// SweepExpired deletes staged payloads created more than maxAge ago.
func (s *Store[T]) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	return sweepKind(ctx, s.repo, s.kind, s.clock.Now().Add(-maxAge))
}

func (s *Store[T]) decode(record Record) (T, error) {
	var payload T
	if err := json.Unmarshal(record.Data, &payload); err != nil {
		return payload, fmt.Errorf("could not decode %s confirmation %s: %w", s.kind, record.ID, err)
	}
	return payload, nil
}

func sweepKind(ctx context.Context, repo Repository, kind Kind, cutoff time.Time) (int64, error) {
	deleted, err := repo.DeleteOlderThan(ctx, kind, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.ConfirmationsTotal.WithLabelValues(string(kind), "swept").Add(float64(deleted))
	}
	return deleted, nil
}

// IsNotFound reports whether err means nothing was staged under the token.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
