package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/dmitrijs2005/cargohold/internal/common"
)

// BreakerStorage wraps a Storage with a circuit breaker so that a failing
// object store does not pile blocked publish and download requests onto
// itself. While the circuit is open every call fails fast with
// common.ErrorStorageUnavailable.
type BreakerStorage struct {
	inner   Storage
	breaker *circuit.Breaker
}

func NewBreakerStorage(inner Storage) *BreakerStorage {
	// Trips after 5 consecutive failures, then retries with exponential
	// backoff before half-opening.
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 5 * time.Second
	expBackoff.MaxInterval = 2 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	opts := &circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	}

	return &BreakerStorage{inner: inner, breaker: circuit.NewBreakerWithOptions(opts)}
}

func (s *BreakerStorage) Store(ctx context.Context, name string, version string, data []byte) error {
	return s.call(func() error {
		return s.inner.Store(ctx, name, version, data)
	})
}

func (s *BreakerStorage) Fetch(ctx context.Context, name string, version string) ([]byte, error) {
	var data []byte
	err := s.call(func() error {
		var fetchErr error
		data, fetchErr = s.inner.Fetch(ctx, name, version)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BreakerStorage) Delete(ctx context.Context, name string, version string) error {
	return s.call(func() error {
		return s.inner.Delete(ctx, name, version)
	})
}

// Tripped reports whether the circuit is currently open, for health checks.
func (s *BreakerStorage) Tripped() bool {
	return s.breaker.Tripped()
}

func (s *BreakerStorage) call(fn func() error) error {
	if !s.breaker.Ready() {
		return fmt.Errorf("circuit breaker is open: %w", common.ErrorStorageUnavailable)
	}
	return s.breaker.Call(fn, 0)
}
