package notification

import (
	"context"
	"fmt"
)

// TemplateRepository is the read-only data access layer for notification
// templates. Templates are seeded by migration and managed externally.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a template repository.
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ActiveForEvent fetches every active template for an event type, ordered
// by channel for deterministic fan-out.
func (r *TemplateRepository) ActiveForEvent(ctx context.Context, eventType string) ([]*Template, error) {
	query := `
		SELECT id, event_type, channel, subject_template, body_template,
			is_active, created_at, updated_at
		FROM notification_templates
		WHERE event_type = $1 AND is_active = TRUE
		ORDER BY channel
	`

	rows, err := r.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []*Template
	for rows.Next() {
		var t Template
		err := rows.Scan(&t.ID, &t.EventType, &t.Channel, &t.SubjectTemplate,
			&t.BodyTemplate, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return templates, nil
}
