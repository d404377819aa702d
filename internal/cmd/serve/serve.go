package serve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/cmd/flags"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/urfave/cli/v3"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the coaching core: background memory indexing plus health and metrics endpoints",
		Flags: append(flags.Common(&cfg), managementFlags(&cfg)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, err := flags.Prepare(ctx, &cfg)
			if err != nil {
				return err
			}
			return run(ctx, &cfg)
		},
	}
}

func managementFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Port for health, readiness and metrics (0 = OS-assigned random port)",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS on the same port",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.ManagementListener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.ManagementListener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_READ_HEADER_TIMEOUT"),
			Destination: &cfg.ManagementListener.ReadHeaderTimeout,
			Value:       cfg.ManagementListener.ReadHeaderTimeout,
			Usage:       "HTTP read header timeout",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Log every management request, probes and scrapes included",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("COACHING_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight work on shutdown",
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	srv, err := StartServer(ctx, cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
