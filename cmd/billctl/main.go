package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"billocr/pkg/config"
	"billocr/pkg/database"
	"billocr/pkg/logger"
	"billocr/pkg/pipeline"
	"billocr/pkg/service"
	"billocr/pkg/storage"
)

var version = "0.3.0"

var (
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "billctl",
	Short: "Read Vietnamese electricity and water bills from images",
	Long: `billctl runs the bill OCR pipeline from the command line.

It can process a single image without a database, ingest whole directories
(optionally watching them for new files), rerun OCR on stored bills and export
stored bills to a spreadsheet. Configuration comes from the environment and an
optional .env file, the same as the HTTP server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			cfg.LogLevel = "debug"
		}
		logCloser, err = logger.Setup(cfg.GetLoggerConfig())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log := logger.WithComponent("billctl")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newPipeline() *pipeline.Orchestrator {
	return pipeline.NewDefault(pipeline.Options{
		Language:       cfg.OCRLanguage,
		TessdataPrefix: cfg.TessdataPrefix,
		ConfigTimeout:  cfg.OCRTimeout,
		MaxPixels:      cfg.MaxPixels,
	}, logger.WithComponent("pipeline"))
}

func openDB(migrate bool) (*gorm.DB, error) {
	if err := cfg.RequireDB(); err != nil {
		return nil, err
	}
	return database.Open(database.Options{
		DSN:           cfg.DBDSN,
		AutoMigrate:   migrate || cfg.DBAutoMigrate,
		AdminPassword: cfg.AdminPassword,
	}, logger.WithComponent("database"))
}

func newBillService() (*service.BillService, error) {
	db, err := openDB(false)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.UploadBase)
	if err != nil {
		return nil, err
	}
	return service.New(db, store, newPipeline(), cfg.PipelineTimeout, logger.WithComponent("bills")), nil
}
