package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RitoIssei/bot-mng-ns/internal/app"
	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/database"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/confirmation"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "budget",
	Short: "Budget ledger and confirmation workflow",
	RunE:  runServer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the API, replicate ledger records and sweep expired confirmations",
	RunE:  runServer,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ledger and staging migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := database.Migrate(cfg.Database); err != nil {
			return err
		}
		staging, err := database.OpenStaging(cfg.Staging.Path)
		if err != nil {
			return err
		}
		log.Info("Migrations applied")
		return staging.Close()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired staged confirmations once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		staging, err := database.OpenStaging(cfg.Staging.Path)
		if err != nil {
			return err
		}
		defer staging.Close()
		sweeper := confirmation.NewSweeper(confirmation.NewSQLiteRepository(staging), &utils.SystemClock{}, cfg.Staging.MaxAge, cfg.Staging.SweepInterval)
		deleted := sweeper.SweepAll(cmd.Context())
		log.Infof("Swept %d expired confirmations", deleted)
		return nil
	},
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		logrusLevel, err := log.ParseLevel(level)
		if err != nil {
			log.Fatal(err)
		}
		log.SetLevel(logrusLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/application.yaml", "Path to the YAML configuration file")
	rootCmd.AddCommand(runCmd, migrateCmd, sweepCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	application, err := app.NewApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
