package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/setup"
	"github.com/robalyx/marginalia/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// withApp initializes the full application for commands that touch both stores.
func withApp(action func(ctx context.Context, c *cli.Command, app *setup.App) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		app, err := setup.InitializeApp(ctx, telemetry.ServiceTool, DBLogDir)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Cleanup()

		return action(ctx, c, app)
	}
}

// flagsCommand shows the absolute flag ledger of a source next to its live aggregate.
func flagsCommand() *cli.Command {
	return &cli.Command{
		Name:      "flags",
		Usage:     "Show the flag ledger and current risk of a source",
		ArgsUsage: "SOURCE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of recent flags to show"},
		},
		Action: withApp(func(ctx context.Context, c *cli.Command, app *setup.App) error {
			if c.Args().Len() != 1 {
				return ErrSourceRequired
			}
			sourceID := c.Args().First()

			summary, err := app.DB.Model().Flag().GetSummary(ctx, sourceID)
			if err != nil {
				return err
			}

			recent, err := app.DB.Model().Flag().GetRecentFlags(ctx, sourceID, int(c.Int("limit")))
			if err != nil {
				return err
			}

			assessment, err := app.NewEngine().AssessSource(ctx, sourceID)
			if err != nil {
				return err
			}

			out, err := sonic.ConfigStd.MarshalIndent(map[string]any{
				"ledger":     summary,
				"recent":     recent,
				"assessment": assessment,
			}, "", "  ")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, string(out))
			return err
		}),
	}
}

// contentCommand groups content moderation tools. Each keeps the topic
// indexes in step with the document store.
func contentCommand() *cli.Command {
	return &cli.Command{
		Name:  "content",
		Usage: "Manage content documents",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import content documents from a JSON array file and index them",
				ArgsUsage: "FILE",
				Action: withApp(func(ctx context.Context, c *cli.Command, app *setup.App) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("%w: FILE required", ErrUsage)
					}

					data, err := os.ReadFile(c.Args().First())
					if err != nil {
						return err
					}

					var contents []*types.Content
					if err := sonic.Unmarshal(data, &contents); err != nil {
						return fmt.Errorf("failed to parse %s: %w", c.Args().First(), err)
					}

					e := app.NewEngine()
					for _, content := range contents {
						if err := app.DB.Model().Content().SaveContent(ctx, content); err != nil {
							return err
						}
						if err := e.IndexContent(ctx, content.ID); err != nil {
							return err
						}
					}

					app.Logger.Info("Imported content", zap.Int("count", len(contents)))
					return nil
				}),
			},
			{
				Name:      "set-status",
				Usage:     "Change the moderation status of content",
				ArgsUsage: "ID STATUS",
				Action: withApp(func(ctx context.Context, c *cli.Command, app *setup.App) error {
					if c.Args().Len() != 2 {
						return fmt.Errorf("%w: ID and STATUS required", ErrUsage)
					}

					id := c.Args().Get(0)
					status := types.ContentStatus(c.Args().Get(1))

					switch status {
					case types.ContentStatusActive, types.ContentStatusDeleted, types.ContentStatusRemoved:
					default:
						return fmt.Errorf("%w: unknown status %q", ErrUsage, status)
					}

					if err := app.DB.Model().Content().SetStatus(ctx, id, status); err != nil {
						return err
					}

					e := app.NewEngine()
					if status == types.ContentStatusActive {
						return e.IndexContent(ctx, id)
					}
					return e.RemoveContent(ctx, id)
				}),
			},
			{
				Name:      "set-topics",
				Usage:     "Reclassify content into a comma separated list of topics",
				ArgsUsage: "ID TOPICS",
				Action: withApp(func(ctx context.Context, c *cli.Command, app *setup.App) error {
					if c.Args().Len() != 2 {
						return fmt.Errorf("%w: ID and TOPICS required", ErrUsage)
					}

					id := c.Args().Get(0)
					topics := strings.Split(c.Args().Get(1), ",")

					previous, err := app.DB.Model().Content().SetTopics(ctx, id, topics)
					if err != nil {
						return err
					}

					return app.NewEngine().RetopicContent(ctx, id, previous)
				}),
			},
		},
	}
}
