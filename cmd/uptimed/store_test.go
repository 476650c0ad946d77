package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
)

func TestOpenStore_PicksAdapterByScheme(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("empty DATABASE_URL: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("want memory store, got %T", s)
	}

	if _, err := openStore(ctx, config.Config{DatabaseURL: "sqlite://x.db"}, zap.NewNop()); err == nil {
		t.Fatalf("unknown scheme should fail")
	}
}
