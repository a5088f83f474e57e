package models

import (
	"context"
	"fmt"

	"github.com/robalyx/marginalia/internal/database/dbretry"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// FlagModel handles database operations for the flag ledger.
type FlagModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewFlag creates a new FlagModel instance.
func NewFlag(db *bun.DB, logger *zap.Logger) *FlagModel {
	return &FlagModel{
		db:     db,
		logger: logger.Named("db_flag"),
	}
}

// RecordFlag appends a flag to the ledger.
func (m *FlagModel) RecordFlag(ctx context.Context, record *types.FlagRecord) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(record).
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record flag: %w", err)
		}

		return nil
	})
}

// GetSummary aggregates all flags ever recorded against a source.
func (m *FlagModel) GetSummary(ctx context.Context, sourceID string) (*types.FlagSummary, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.FlagSummary, error) {
		summary := &types.FlagSummary{SourceID: sourceID}

		err := m.db.NewSelect().
			Model((*types.FlagRecord)(nil)).
			ColumnExpr("COUNT(*) AS total_flags").
			ColumnExpr("COALESCE(SUM(weight), 0) AS total_weight").
			ColumnExpr("COALESCE(MAX(flagged_at), 'epoch') AS last_flagged").
			Where("source_id = ?", sourceID).
			Scan(ctx, &summary.TotalFlags, &summary.TotalWeight, &summary.LastFlagged)
		if err != nil {
			return nil, fmt.Errorf("failed to get flag summary: %w", err)
		}

		return summary, nil
	})
}

// GetRecentFlags retrieves the most recent flags recorded against a source.
func (m *FlagModel) GetRecentFlags(ctx context.Context, sourceID string, limit int) ([]*types.FlagRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.FlagRecord, error) {
		var records []*types.FlagRecord

		err := m.db.NewSelect().
			Model(&records).
			Where("source_id = ?", sourceID).
			Order("flagged_at DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent flags: %w", err)
		}

		return records, nil
	})
}
