package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chirino/coaching-service/internal/cmd/flags"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/core"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// Command returns the report sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:     "report",
		Usage:    "Generate and inspect users' progress reports as JSON",
		Commands: []*cli.Command{generateCommand(), listCommand(), getCommand()},
	}
}

func generateCommand() *cli.Command {
	cfg := config.DefaultConfig()
	var (
		userID string
		days   int
	)
	return &cli.Command{
		Name:  "generate",
		Usage: "Score the user's recent activity and store a new report",
		Flags: append([]cli.Flag{
			userFlag(&userID),
			&cli.IntFlag{
				Name:        "days",
				Usage:       "Report window in days, ending now",
				Destination: &days,
				Value:       30,
			},
		}, flags.Common(&cfg)...),
		Action: withCore(&cfg, func(ctx context.Context, c *core.Core, w io.Writer) error {
			report, err := c.GenerateReport(ctx, userID, days)
			if err != nil {
				return err
			}
			return printJSON(w, report)
		}),
	}
}

func listCommand() *cli.Command {
	cfg := config.DefaultConfig()
	var (
		userID string
		limit  int
	)
	return &cli.Command{
		Name:  "list",
		Usage: "Print the user's stored reports, newest first",
		Flags: append([]cli.Flag{
			userFlag(&userID),
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "Maximum number of reports printed",
				Destination: &limit,
				Value:       10,
			},
		}, flags.Common(&cfg)...),
		Action: withCore(&cfg, func(ctx context.Context, c *core.Core, w io.Writer) error {
			reports, err := c.ListReports(ctx, userID, limit)
			if err != nil {
				return err
			}
			return printJSON(w, reports)
		}),
	}
}

func getCommand() *cli.Command {
	cfg := config.DefaultConfig()
	var (
		userID   string
		reportID string
	)
	return &cli.Command{
		Name:  "get",
		Usage: "Print one stored report",
		Flags: append([]cli.Flag{
			userFlag(&userID),
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Report id",
				Destination: &reportID,
				Required:    true,
			},
		}, flags.Common(&cfg)...),
		Action: withCore(&cfg, func(ctx context.Context, c *core.Core, w io.Writer) error {
			id, err := uuid.Parse(reportID)
			if err != nil {
				return fmt.Errorf("invalid report id %q: %w", reportID, err)
			}
			report, err := c.GetReport(ctx, userID, id)
			if err != nil {
				return err
			}
			return printJSON(w, report)
		}),
	}
}

func userFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "user",
		Usage:       "User the reports belong to",
		Destination: dst,
		Required:    true,
	}
}

func withCore(cfg *config.Config, fn func(context.Context, *core.Core, io.Writer) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		ctx, err := flags.Prepare(ctx, cfg)
		if err != nil {
			return err
		}
		c, err := core.Build(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(ctx, c, cmd.Root().Writer)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
