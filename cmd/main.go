package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ochronus/storageportal/internal/app"
	"github.com/ochronus/storageportal/internal/config"
	"github.com/ochronus/storageportal/internal/mock"
	"github.com/ochronus/storageportal/internal/utils"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

func main() {
	// Get default config path
	defaultConfigPath, err := config.DefaultConfigPath()
	if err != nil {
		defaultConfigPath = "./config.toml"
	}

	// Root command
	rootCmd := &cobra.Command{
		Use:           "storageportal",
		Short:         "Command line client for the storage admin portal",
		Long:          "Manage files, sites and the storage strategy of a storage admin portal, or run a local mock of its API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")

	// Mock command
	mockCmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a mock portal API for local development",
		Args:  cobra.NoArgs,
		RunE:  runMock,
	}

	// Generate-config command
	generateConfigCmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return utils.GenerateConfig(configPath)
		},
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("storageportal version %s\n", version)
		},
	}

	rootCmd.AddCommand(userCommands()...)
	rootCmd.AddCommand(storageCommands()...)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(generateConfigCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newContainer loads and validates the client configuration and builds the
// shared dependencies. The caller must Close the container.
func newContainer(opts ...app.Option) (*app.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Build container with shared dependencies
	container, err := app.NewContainer(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}
	return container, nil
}

func runMock(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.ValidateMock(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := app.NewContainer(cfg, app.WithPersistentSessions(false))
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer container.Close()

	container.Logger.Infof("Starting storageportal mock, version %s", version)

	server, err := mock.NewServer(container)
	if err != nil {
		return fmt.Errorf("failed to build mock server: %w", err)
	}
	return server.StartWithContext(cmd.Context())
}
