package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/logging"
)

func TestOpenDevelopmentWithoutURLs(t *testing.T) {
	conns, err := Open(context.Background(), config.Config{AppEnv: "development"}, logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if conns.DB != nil || conns.Cache != nil {
		t.Fatalf("expected no clients, got %+v", conns)
	}
}

func TestOpenRequiresURLsOutsideDevelopment(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{AppEnv: "production"}, logging.Discard()); err == nil {
		t.Fatalf("expected an error without DATABASE_URL")
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected an error for an empty url")
	}
}
