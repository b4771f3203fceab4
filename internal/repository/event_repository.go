package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// EventRepository журнал realtime событий для догоняющего чтения.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository создаёт экземпляр репозитория.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save сохраняет событие. Повторное сохранение того же id игнорируется.
func (r *EventRepository) Save(ctx context.Context, event *models.RealtimeEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO realtime_events (id, topic, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.Topic, event.Type, []byte(event.Data), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("event repository: save %w", err)
	}
	return nil
}

// ListSince возвращает события топика, созданные после since, в порядке появления.
func (r *EventRepository) ListSince(ctx context.Context, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error) {
	events := []models.RealtimeEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT id, topic, type, payload, created_at
		FROM realtime_events
		WHERE topic = $1 AND created_at > $2
		ORDER BY created_at ASC
		LIMIT $3
	`, topic, since, limit)
	if err != nil {
		return nil, fmt.Errorf("event repository: list since %w", err)
	}
	return events, nil
}

// DeleteOlderThan удаляет события старше указанного момента.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM realtime_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("event repository: cleanup %w", err)
	}
	return res.RowsAffected()
}
