package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	servicehost "github.com/goletan/servicehost/pkg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Seed, bind and serve until interrupted",
	Long: `Run seeds the server configuration on first run, starts and binds every
configured service and serves the control API. SIGINT or SIGTERM stop the
services and terminate their processes; SIGHUP releases and re-acquires
every binding.

Examples:
  servicehost run
  SERVICEHOST_LOGGING_LEVEL=DEBUG servicehost run --config ./servicehost.yaml`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := servicehost.New(ctx, cfg, servicehost.WithVersion(Version))
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(context.Background()) }()

	log := h.Logger()
	log.Info("Host starting",
		zap.String("version", Version),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("services", len(cfg.Services)))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	rebind := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				select {
				case rebind <- struct{}{}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := h.Run(ctx, rebind); err != nil {
		log.Error("Host stopped with errors", zap.Error(err))
		return err
	}
	log.Info("Host stopped")
	return nil
}
