// Command relay runs the streaming agent gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vantagelabs/relay/internal/agent"
	"github.com/vantagelabs/relay/internal/agent/providers"
	"github.com/vantagelabs/relay/internal/config"
	"github.com/vantagelabs/relay/internal/gateway"
	"github.com/vantagelabs/relay/internal/observability"
	"github.com/vantagelabs/relay/internal/resources"
	"github.com/vantagelabs/relay/internal/tools/files"
	"github.com/vantagelabs/relay/internal/tools/options"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Streaming tool-call agent gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "relay.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "relay", version)
		},
	})
	return root
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging.Format, cfg.Logging.Level)

	store, err := resources.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var provider agent.LLMProvider
	switch cfg.Provider.Name {
	case "anthropic":
		provider = providers.NewAnthropic(cfg.Provider.APIKey, cfg.Provider.Model)
	case "openai":
		provider = providers.NewOpenAI(cfg.Provider.APIKey, cfg.Provider.Model)
	}

	registry := agent.NewToolRegistry()
	if err := registry.Register(files.New(store)); err != nil {
		return err
	}
	if err := registry.Register(options.New()); err != nil {
		return err
	}

	executor := agent.NewExecutor(registry, cfg.Executor, logger)
	loop := agent.NewLoop(provider, executor, store, cfg.Agent, logger)
	streams := gateway.NewStreamManager(loop, logger)
	server := gateway.NewServer(cfg.Server.Addr(), streams, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
