package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/marginalia/internal/database/dbretry"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"
)

// ContentModel handles database operations for comment and reply documents.
type ContentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewContent creates a new ContentModel instance.
func NewContent(db *bun.DB, logger *zap.Logger) *ContentModel {
	return &ContentModel{
		db:     db,
		logger: logger.Named("db_content"),
	}
}

// GetContent retrieves a content document by ID.
func (m *ContentModel) GetContent(ctx context.Context, id string) (*types.Content, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Content, error) {
		var content types.Content

		err := m.db.NewSelect().
			Model(&content).
			Where("id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrContentNotFound
			}

			return nil, fmt.Errorf("failed to get content: %w", err)
		}

		return &content, nil
	})
}

// SaveContent inserts or updates a content document.
func (m *ContentModel) SaveContent(ctx context.Context, content *types.Content) error {
	content.UpdatedAt = time.Now()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = content.UpdatedAt
	}
	if content.Status == "" {
		content.Status = types.ContentStatusActive
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(content).
			On("CONFLICT (id) DO UPDATE").
			Set("topics = EXCLUDED.topics").
			Set("source_ref = EXCLUDED.source_ref").
			Set("status = EXCLUDED.status").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save content: %w", err)
		}

		return nil
	})
}

// SetStatus changes the moderation state of a content document.
func (m *ContentModel) SetStatus(ctx context.Context, id string, status types.ContentStatus) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		result, err := m.db.NewUpdate().
			Model((*types.Content)(nil)).
			Set("status = ?", status).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set content status: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}

		if affected == 0 {
			return types.ErrContentNotFound
		}

		m.logger.Debug("Updated content status",
			zap.String("contentID", id),
			zap.String("status", string(status)))

		return nil
	})
}

// SetTopics replaces the topic classification of a content document and
// returns the previous topics.
func (m *ContentModel) SetTopics(ctx context.Context, id string, topics []string) ([]string, error) {
	var previous []string

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		var content types.Content

		err := tx.NewSelect().
			Model(&content).
			Column("topics").
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrContentNotFound
			}
			return fmt.Errorf("failed to get content topics: %w", err)
		}

		previous = content.Topics

		_, err = tx.NewUpdate().
			Model((*types.Content)(nil)).
			Set("topics = ?", pgdialect.Array(topics)).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set content topics: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return previous, nil
}
