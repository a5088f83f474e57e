package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		tables := []any{
			(*types.Content)(nil),
			(*types.FlagRecord)(nil),
		}

		for _, model := range tables {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_contents_author ON contents (author_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_contents_source ON contents (source_id) WHERE status = 'active'`,
			`CREATE INDEX IF NOT EXISTS idx_contents_topics ON contents USING GIN (topics)`,
			`CREATE INDEX IF NOT EXISTS idx_flag_records_source ON flag_records (source_id, flagged_at DESC)`,
		}

		for _, index := range indexes {
			if _, err := db.ExecContext(ctx, index); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []any{
			(*types.FlagRecord)(nil),
			(*types.Content)(nil),
		}

		for _, model := range tables {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
		}

		return nil
	})
}
