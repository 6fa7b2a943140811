package ristretto

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/tiercache/backend/backendtest"
)

func TestConformance(t *testing.T) {
	s, err := New(Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(context.Background())
	backendtest.Run(t, s, backendtest.Options{NoScan: true, ClearsAll: true})
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
