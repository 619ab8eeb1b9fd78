package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/juanlucasl/sendtrack/internal/api"
	"github.com/juanlucasl/sendtrack/internal/backfill"
	"github.com/juanlucasl/sendtrack/internal/config"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "sendtrack",
		Short: "sendtrack — per-recipient message delivery-state tracker",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(backfillCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(conversationCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sendtrack server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run schema migrations: %w", err)
			}

			ourConversationID, err := ensureOwnConversation(ctx, store, cfg.Account)
			if err != nil {
				return err
			}

			dir, err := directory.Load(ctx, store)
			if err != nil {
				return fmt.Errorf("failed to load conversation directory: %w", err)
			}

			dir.StartAutoRefresh(ctx, store, cfg.Directory.RefreshInterval, log)

			var pool *backfill.Pool
			if cfg.Backfill.Enabled {
				pool = backfill.NewPool(cfg.Backfill, store, dir, ourConversationID, log)
				pool.Start(ctx)
			}

			server := api.NewServer(cfg.Server, api.Options{
				Store:             store,
				Directory:         dir,
				OurConversationID: ourConversationID,
				APIKey:            cfg.API.Key,
				ReceiptSecret:     cfg.Receipts.Secret,
			}, log)

			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("account", cfg.Account.Identifier).
				Bool("backfill", cfg.Backfill.Enabled).
				Msg("sendtrack is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}
			if pool != nil {
				pool.Stop()
			}

			log.Info().Msg("sendtrack stopped")
			return nil
		},
	}
}

func backfillCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Migrate all legacy messages to normalized send state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run schema migrations: %w", err)
			}

			ourConversationID, err := ensureOwnConversation(ctx, store, cfg.Account)
			if err != nil {
				return err
			}

			dir, err := directory.Load(ctx, store)
			if err != nil {
				return fmt.Errorf("failed to load conversation directory: %w", err)
			}

			pool := backfill.NewPool(cfg.Backfill, store, dir, ourConversationID, log)
			migrated, err := pool.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("backfill failed after %d messages: %w", migrated, err)
			}

			log.Info().Int("migrated", migrated).Msg("backfill completed")
			return nil
		},
	}
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show message and send-state stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func conversationCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Manage conversations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new conversation",
		Long: "Create a new conversation directly in the database.\n" +
			"A running server sees it after its next directory refresh\n" +
			"(directory.refresh_interval, 30s by default).",
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier, _ := cmd.Flags().GetString("identifier")
			name, _ := cmd.Flags().GetString("name")
			if identifier == "" {
				return fmt.Errorf("--identifier is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			c := &models.Conversation{
				ID:         models.NewID("cnv"),
				Identifier: identifier,
				Name:       name,
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			if err := store.CreateConversation(context.Background(), c); err != nil {
				return fmt.Errorf("failed to create conversation: %w", err)
			}

			out, _ := json.MarshalIndent(c, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("identifier", "", "external identifier (phone number or account ID)")
	createCmd.Flags().String("name", "", "display name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			conversations, err := store.ListConversations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}

			if len(conversations) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}

			for _, c := range conversations {
				fmt.Printf("  %s  %s  %s\n", c.ID, c.Identifier, c.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sendtrack v%s\n", version)
		},
	}
}

// ensureOwnConversation resolves the account's own conversation, creating
// it on first run. Migrated messages record the sender's linked-device
// copy under this conversation.
func ensureOwnConversation(ctx context.Context, store storage.Storage, account config.AccountConfig) (string, error) {
	if account.Identifier == "" {
		return "", fmt.Errorf("account.identifier is required")
	}

	existing, err := store.GetConversationByIdentifier(ctx, account.Identifier)
	if err != nil {
		return "", fmt.Errorf("failed to look up account conversation: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	now := time.Now().UTC()
	c := &models.Conversation{
		ID:         models.NewID("cnv"),
		Identifier: account.Identifier,
		Name:       account.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateConversation(ctx, c); err != nil {
		return "", fmt.Errorf("failed to create account conversation: %w", err)
	}
	return c.ID, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run schema migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
