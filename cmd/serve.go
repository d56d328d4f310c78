package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sita/sidang/api/schedule"
	"github.com/sita/sidang/app"
	"github.com/sita/sidang/config"
	"github.com/sita/sidang/infra/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the trigger poller",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	log := logger.New("main")
	defer func() {
		if err := a.Close(); err != nil {
			log.Errorf("app close: %v", err)
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := schedule.NewServer(cfg.HTTP, a.Service, logger.New("api"))
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.HTTP.Addr)
		errCh <- srv.Listen(cfg.HTTP.Addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Infof("shutting down")
	return srv.ShutdownWithTimeout(10 * time.Second)
}
