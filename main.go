package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/cmd/memory"
	"github.com/chirino/coaching-service/internal/cmd/migrate"
	"github.com/chirino/coaching-service/internal/cmd/report"
	"github.com/chirino/coaching-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "coaching-service",
		Usage: "AI sales coaching core: provider gateway, memory, context assembly and progress analytics",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			report.Command(),
			memory.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
