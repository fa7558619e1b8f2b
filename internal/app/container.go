package app

import (
	"fmt"

	"github.com/ochronus/storageportal/internal/config"
	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/ochronus/storageportal/internal/session"
	"github.com/sirupsen/logrus"
)

// Container centralizes the core dependencies used across the application.
// It is intentionally small and uses interfaces so callers (and tests) can
// substitute implementations easily.
type Container struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Client   portal.ClientAPI
	Sessions *session.Store

	persistSessions bool
	ownsSessions    bool
}

// Option allows customizing the container during construction.
type Option func(*Container) error

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithClient overrides the default portal client.
func WithClient(client portal.ClientAPI) Option {
	return func(c *Container) error {
		if client == nil {
			return fmt.Errorf("portal client cannot be nil")
		}
		c.Client = client
		return nil
	}
}

// WithSessionStore uses store instead of opening the configured session file.
// The caller keeps ownership of store.
func WithSessionStore(store *session.Store) Option {
	return func(c *Container) error {
		if store == nil {
			return fmt.Errorf("session store cannot be nil")
		}
		c.Sessions = store
		return nil
	}
}

// WithPersistentSessions enables or disables the session store (default: enabled).
// Without it the default client sends no token.
func WithPersistentSessions(enabled bool) Option {
	return func(c *Container) error {
		c.persistSessions = enabled
		return nil
	}
}

// NewContainer builds a Container with sensible defaults derived from cfg.
// Options can be supplied to override specific dependencies (useful in tests).
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	container := &Container{
		Config:          cfg,
		Logger:          buildDefaultLogger(cfg.Loglevel),
		persistSessions: true,
	}

	// Apply options early so tests can inject mocks before defaults are created.
	for _, opt := range opts {
		if err := opt(container); err != nil {
			return nil, err
		}
	}

	if container.Sessions == nil && container.persistSessions {
		path, err := cfg.SessionPath()
		if err != nil {
			return nil, err
		}
		store, err := session.Open(path)
		if err != nil {
			return nil, err
		}
		container.Sessions = store
		container.ownsSessions = true
	}

	if container.Client == nil {
		container.Client = buildClient(cfg, container.Logger, container.Sessions)
	}

	return container, nil
}

// Close releases the session store when the container opened it.
func (c *Container) Close() error {
	if c.ownsSessions && c.Sessions != nil {
		return c.Sessions.Close()
	}
	return nil
}

func buildClient(cfg *config.Config, logger *logrus.Logger, sessions *session.Store) *portal.Client {
	opts := []portal.Option{
		portal.WithTimeout(cfg.TimeoutDuration()),
		portal.WithLogger(logger),
	}
	if sessions != nil {
		opts = append(opts, portal.WithTokenSource(sessions.Source(cfg.APIURL)))
	}
	return portal.NewClient(cfg.APIURL, opts...)
}

func buildDefaultLogger(levelStr string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
