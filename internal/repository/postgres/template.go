package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
)

type templateRepository struct {
	*BaseRepository
}

func NewTemplateRepository(base *BaseRepository) repository.TemplateRepository {
	return &templateRepository{
		BaseRepository: base,
	}
}

func (r *templateRepository) GetByName(ctx context.Context, name string) (*model.NotificationTemplate, error) {
	var t model.NotificationTemplate
	err := r.db.GetContext(ctx, &t, `SELECT * FROM notification_templates WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %q: %w", name, err)
	}
	return &t, nil
}

func (r *templateRepository) List(ctx context.Context, activeOnly bool) ([]*model.NotificationTemplate, error) {
	query := `SELECT * FROM notification_templates`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name`

	var templates []*model.NotificationTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}
