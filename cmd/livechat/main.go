package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thereayou/livechat/cmd/server"
	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "livechat",
		Short:         "Real-time chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory with config.yaml")

	root.AddCommand(serveCmd(), migrateCmd(), promoteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := server.NewServer(ctx, cfg)
			if err != nil {
				return err
			}
			return s.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			log := logger.L()
			log.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}

// promoteCmd выдаёт права администратора, первого админа иначе не создать
func promoteCmd() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant or revoke administrator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			user, err := db.FindUserByEmail(ctx, strings.ToLower(args[0]))
			if err != nil {
				return fmt.Errorf("user %s not found: %w", args[0], err)
			}
			user.IsAdmin = !revoke
			if err := db.UpdateUser(ctx, user); err != nil {
				return err
			}
			log := logger.L()
			log.Info().Str("email", user.Email).Bool("admin", user.IsAdmin).Msg("user updated")
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove administrator rights instead")
	return cmd
}
