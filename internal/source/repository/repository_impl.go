package repository

import (
	"context"
	"time"

	"github.com/carebase/planmart/internal/source/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FetchAll(ctx context.Context, db *gorm.DB) ([]domain.PlanDocument, error) {
	var docs []domain.PlanDocument
	if err := db.WithContext(ctx).
		Raw(`SELECT id, object_id, payload, created_at, updated_at
			FROM plan_documents
			ORDER BY id ASC`).
		Scan(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, doc domain.PlanDocument) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_documents (object_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (object_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		doc.ObjectID,
		doc.Payload,
		now,
		now,
	).Error
}

func (r *repo) CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM plan_documents`).
		Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
