package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/models"
)

func (d *Database) SaveSubject(ctx context.Context, subject *models.Subject) error {
	return d.db.WithContext(ctx).Create(subject).Error
}

func (d *Database) SubjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Subject{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
