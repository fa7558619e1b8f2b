package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ochronus/storageportal/internal/app"
	"github.com/ochronus/storageportal/internal/config"
	"github.com/sirupsen/logrus"
)

// Server represents the mock portal HTTP server
type Server struct {
	config  *config.MockConfig
	handler *Handler
	logger  *logrus.Logger
	router  *gin.Engine
	srv     *http.Server
}

// NewServer creates a mock server seeded from the container's configuration.
func NewServer(container *app.Container) (*Server, error) {
	cfg := container.Config
	mockCfg := cfg.Mock

	// Set gin mode based on log level
	if cfg.Loglevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := seedStore(&mockCfg, time.Now())
	if err != nil {
		return nil, err
	}

	secret := []byte(mockCfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
	}
	issuer := NewIssuer(secret, time.Duration(mockCfg.TokenTTL)*time.Hour)

	handler := NewHandler(store, issuer, container.Logger)

	return &Server{
		config:  &mockCfg,
		handler: handler,
		logger:  container.Logger,
		router:  newRouter(handler, container.Logger),
	}, nil
}

func seedStore(cfg *config.MockConfig, now time.Time) (*Store, error) {
	store := NewStore(cfg.Sites)
	if err := store.AddUser(cfg.Username, cfg.Password, "admin"); err != nil {
		return nil, err
	}

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	rng := mrand.New(mrand.NewPCG(seed, seed))
	for _, entry := range GenerateFiles(rng, cfg.Files, cfg.Sites, now) {
		if err := store.PutFile(cfg.Username, entry, nil); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func newRouter(handler *Handler, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	// Filenames in delete paths may contain escaped slashes.
	router.UseRawPath = true
	router.UnescapePathValues = true

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("mock request")
	})

	// Register routes
	router.POST("/user/login", handler.Login)

	authed := router.Group("/", handler.RequireToken)
	authed.GET("/user/info", handler.Info)
	authed.POST("/user/logout", handler.Logout)
	authed.GET("/user/strategy", handler.GetStrategy)
	authed.POST("/user/strategy", handler.SetStrategy)
	authed.POST("/user/passwd", handler.ChangePassword)
	authed.GET("/user/site", handler.Sites)
	authed.GET("/storage/list", handler.List)
	authed.POST("/storage/upload", handler.Upload)
	authed.GET("/storage/download", handler.Download)
	authed.DELETE("/storage/delete/:filename", handler.Delete)

	return router
}

// Start starts the HTTP server with a background context.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the HTTP server and shuts down gracefully when the context is canceled.
func (s *Server) StartWithContext(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	s.logger.Infof("Starting mock portal at http://%s (user %q)", addr, s.config.Username)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// GetRouter returns the underlying gin router (useful for testing)
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
