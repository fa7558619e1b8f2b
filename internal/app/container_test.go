package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ochronus/storageportal/internal/config"
	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/ochronus/storageportal/internal/session"
)

type fakeClient struct {
	portal.ClientAPI
}

func baseConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.APIURL = "http://portal.test"
	cfg.SessionFile = filepath.Join(t.TempDir(), "session.db")
	return cfg
}

func TestNewContainerDefaults(t *testing.T) {
	cfg := baseConfig(t)

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer container.Close()

	if container.Logger == nil {
		t.Fatal("expected logger to be initialized")
	}
	if container.Sessions == nil {
		t.Fatal("expected session store to be opened")
	}
	if container.Client == nil {
		t.Fatal("expected client to be initialized")
	}
	if got := container.Client.BaseURL(); got != "http://portal.test" {
		t.Errorf("expected client base URL from config, got %q", got)
	}
}

func TestContainerOverrides(t *testing.T) {
	cfg := baseConfig(t)
	client := &fakeClient{}
	customLogger := buildDefaultLogger("debug")

	container, err := NewContainer(
		cfg,
		WithLogger(customLogger),
		WithClient(client),
		WithPersistentSessions(false),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if container.Logger != customLogger {
		t.Error("expected custom logger to be used")
	}
	if container.Client != client {
		t.Error("expected custom client to be used")
	}
	if container.Sessions != nil {
		t.Error("expected no session store when persistence is disabled")
	}
	if err := container.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestContainerUsesInjectedSessionStore(t *testing.T) {
	cfg := baseConfig(t)
	store, err := session.Open(filepath.Join(t.TempDir(), "injected.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.Save(cfg.APIURL, session.Session{Token: "tok"}); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	container, err := NewContainer(cfg, WithSessionStore(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if container.Sessions != store {
		t.Fatal("expected injected store to be used")
	}

	// Closing the container must leave a caller-owned store open.
	if err := container.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	sess, err := store.Load(cfg.APIURL)
	if err != nil {
		t.Fatalf("store should still be usable: %v", err)
	}
	if sess == nil || sess.Token != "tok" {
		t.Errorf("expected saved token, got %+v", sess)
	}

	token, err := store.Source(cfg.APIURL).Token(context.Background())
	if err != nil || token != "tok" {
		t.Errorf("expected token source to return saved token, got %q (%v)", token, err)
	}
}

func TestNewContainerNilConfigError(t *testing.T) {
	if _, err := NewContainer(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestWithLoggerNilError(t *testing.T) {
	_, err := NewContainer(baseConfig(t), WithLogger(nil), WithPersistentSessions(false))
	if err == nil {
		t.Fatal("expected error when logger is nil")
	}
}

func TestWithClientNilError(t *testing.T) {
	_, err := NewContainer(baseConfig(t), WithClient(nil), WithPersistentSessions(false))
	if err == nil {
		t.Fatal("expected error when client is nil")
	}
}

func TestWithSessionStoreNilError(t *testing.T) {
	_, err := NewContainer(baseConfig(t), WithSessionStore(nil))
	if err == nil {
		t.Fatal("expected error when session store is nil")
	}
}

func TestBuildDefaultLoggerFallsBackToInfo(t *testing.T) {
	logger := buildDefaultLogger("nonsense")
	if logger.GetLevel().String() != "info" {
		t.Errorf("expected info level, got %s", logger.GetLevel())
	}
}
