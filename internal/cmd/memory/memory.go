package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/coaching-service/internal/cmd/flags"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/core"
	"github.com/chirino/coaching-service/internal/memory"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// Command returns the memory sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:     "memory",
		Usage:    "Inspect users' long-term coaching memory",
		Commands: []*cli.Command{searchCommand()},
	}
}

type searchResult struct {
	Score     float64 `json:"score"`
	TurnID    string  `json:"turnId"`
	SessionID string  `json:"sessionId"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"createdAt"`
	Text      string  `json:"text"`
}

func searchCommand() *cli.Command {
	cfg := config.DefaultConfig()
	var (
		userID    string
		query     string
		k         int
		sessionID string
	)
	return &cli.Command{
		Name:  "search",
		Usage: "Print a user's memories most relevant to a query, one JSON object per line",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User whose memory is searched", Destination: &userID, Required: true},
			&cli.StringFlag{Name: "query", Usage: "Text to search for", Destination: &query, Required: true},
			&cli.IntFlag{Name: "k", Usage: "Number of matches", Destination: &k, Value: 5},
			&cli.StringFlag{Name: "session", Usage: "Only search memories from this session id", Destination: &sessionID},
		}, flags.Common(&cfg)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req := memory.SearchRequest{UserID: userID, Text: query, K: k}
			if sessionID != "" {
				id, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("invalid session id %q: %w", sessionID, err)
				}
				req.SessionID = id
			}
			ctx, err := flags.Prepare(ctx, &cfg)
			if err != nil {
				return err
			}
			c, err := core.Build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			matches, err := c.SearchMemory(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.Root().Writer)
			for _, m := range matches {
				err := enc.Encode(searchResult{
					Score:     m.Score,
					TurnID:    m.Record.SourceTurnID.String(),
					SessionID: m.Record.SessionID.String(),
					Role:      string(m.Record.Role),
					CreatedAt: m.Record.CreatedAt.UTC().Format(time.RFC3339),
					Text:      m.Record.TextExcerpt,
				})
				if err != nil {
					return fmt.Errorf("encode output: %w", err)
				}
			}
			return nil
		},
	}
}
