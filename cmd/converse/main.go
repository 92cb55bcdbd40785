// Package main provides the converse server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richinex/converse/chat"
	"github.com/richinex/converse/config"
	"github.com/richinex/converse/llm"
	"github.com/richinex/converse/search"
	"github.com/richinex/converse/server"
	"github.com/richinex/converse/storage"
)

var configPath string

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "converse",
		Short: "Conversation API server in front of a local Ollama runtime",
		Long: `An HTTP API that accepts chat messages, maintains per-conversation
history across interchangeable storage backends (sqlite, json, csv),
and forwards conversations to a local or remote LLM runtime.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(pullCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			store, err := storage.Open(settings.Database.Type, storage.Config{Path: settings.Database.Path})
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			gateway, err := newGateway(settings, logger)
			if err != nil {
				return err
			}
			defer gateway.Close()

			service := chat.NewService(store, gateway, settings.LLM.DefaultModel, logger)
			srv := server.New(service, gateway, store, logger)

			go func() {
				if err := srv.Start(settings.Server.Port); err != nil && err != http.ErrServerClosed {
					logger.Fatal("server failed", zap.Error(err))
				}
			}()

			logger.Info("server started",
				zap.Int("port", settings.Server.Port),
				zap.String("database", settings.Database.Type),
				zap.String("runtime", settings.LLM.Runtime),
				zap.String("default_model", settings.LLM.DefaultModel))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("forced shutdown: %w", err)
			}
			logger.Info("server exited")
			return nil
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available on the runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}

			gateway, err := newGateway(settings, zap.NewNop())
			if err != nil {
				return err
			}
			defer gateway.Close()

			models := gateway.ListModels(cmd.Context())
			if len(models) == 0 {
				fmt.Println("No models available (is the runtime reachable?)")
				return nil
			}
			for _, m := range models {
				if m.Size > 0 {
					fmt.Printf("%s\t%.1f GB\n", m.Name, float64(m.Size)/1e9)
				} else {
					fmt.Println(m.Name)
				}
			}
			return nil
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [model]",
		Short: "Download a model to the runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}

			gateway, err := newGateway(settings, zap.NewNop())
			if err != nil {
				return err
			}
			defer gateway.Close()

			fmt.Printf("Pulling %s...\n", args[0])
			if err := gateway.PullModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Done.")
			return nil
		},
	}
}

func newGateway(settings config.Settings, logger *zap.Logger) (*llm.Gateway, error) {
	runtimeType, err := llm.ParseRuntimeType(settings.LLM.Runtime)
	if err != nil {
		return nil, err
	}

	runtime, err := llm.NewRuntime(llm.RuntimeConfig{
		Type:    runtimeType,
		BaseURL: settings.RuntimeBaseURL(),
		APIKey:  settings.LLM.APIKey,
	})
	if err != nil {
		return nil, err
	}

	return llm.NewGateway(runtime, search.NewDuckDuckGo(), settings.LLM.Workers, logger), nil
}
