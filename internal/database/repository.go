package database

import (
	"github.com/robalyx/marginalia/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	content *models.ContentModel
	flag    *models.FlagModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		content: models.NewContent(db, logger),
		flag:    models.NewFlag(db, logger),
	}
}

// Content returns the content model repository.
func (r *Repository) Content() *models.ContentModel {
	return r.content
}

// Flag returns the flag ledger model repository.
func (r *Repository) Flag() *models.FlagModel {
	return r.flag
}
