package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads and writes raw plan documents in the source store.
type Repository interface {
	FetchAll(ctx context.Context, db *gorm.DB) ([]PlanDocument, error)
	Upsert(ctx context.Context, db *gorm.DB, doc PlanDocument) error
	CountAll(ctx context.Context, db *gorm.DB) (int64, error)
}
