package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"urlbox/internal/platform/models"
)

type RenderEventRepository struct {
	db *sql.DB
}

func NewRenderEventRepository(db *sql.DB) *RenderEventRepository {
	return &RenderEventRepository{db: db}
}

// Create stores event unless the same (render id, event) pair was already
// received, in which case it returns false and leaves the table unchanged.
func (r *RenderEventRepository) Create(ctx context.Context, event *models.RenderEvent) (bool, error) {
	return insertEvent(ctx, r.db, event)
}

// Record stores event and applies it to its render in one transaction, so a
// failed status update leaves no event behind and a redelivery is processed
// again. created is false for a duplicate delivery; tracked reports whether a
// render row was updated.
func (r *RenderEventRepository) Record(ctx context.Context, event *models.RenderEvent) (created, tracked bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, err
	}
	defer tx.Rollback()

	created, err = insertEvent(ctx, tx, event)
	if err != nil || !created {
		return false, false, err
	}

	tracked, err = applyEvent(ctx, tx, event)
	if err != nil {
		return false, false, err
	}

	if err := tx.Commit(); err != nil {
		return false, false, err
	}
	return true, tracked, nil
}

func insertEvent(ctx context.Context, db execer, event *models.RenderEvent) (bool, error) {
	event.ID = "evt_" + uuid.New().String()
	if event.ReceivedAt == 0 {
		event.ReceivedAt = time.Now().Unix()
	}

	query := `
		INSERT OR IGNORE INTO render_events (id, render_id, event, render_url, size, error, payload, signed_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.ExecContext(ctx, query,
		event.ID,
		event.RenderID,
		event.Event,
		nullString(event.RenderURL),
		event.Size,
		nullString(event.Error),
		string(event.Payload),
		event.SignedAt,
		event.ReceivedAt,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RenderEventRepository) ListByRender(ctx context.Context, renderID string) ([]*models.RenderEvent, error) {
	query := `
		SELECT id, render_id, event, render_url, size, error, payload, signed_at, received_at
		FROM render_events WHERE render_id = ? ORDER BY received_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, renderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*models.RenderEvent{}
	for rows.Next() {
		var (
			e                   models.RenderEvent
			renderURL, errorMsg sql.NullString
			size                sql.NullInt64
			payload             string
		)
		if err := rows.Scan(&e.ID, &e.RenderID, &e.Event, &renderURL, &size, &errorMsg, &payload, &e.SignedAt, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.RenderURL = renderURL.String
		e.Size = size.Int64
		e.Error = errorMsg.String
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DeleteReceivedBefore removes events received before cutoff (unix seconds)
// and returns how many were deleted.
func (r *RenderEventRepository) DeleteReceivedBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM render_events WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
