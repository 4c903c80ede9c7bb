package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"urlbox/internal/platform/models"
)

var ErrNotFound = errors.New("repositories: not found")

const renderColumns = `id, render_id, status, target, format, status_url, render_url, size, error, options, created_at, updated_at`

type RenderRepository struct {
	db *sql.DB
}

func NewRenderRepository(db *sql.DB) *RenderRepository {
	return &RenderRepository{db: db}
}

func (r *RenderRepository) Create(ctx context.Context, render *models.Render) error {
	now := time.Now().Unix()
	render.ID = "rnd_" + uuid.New().String()
	render.CreatedAt = now
	render.UpdatedAt = now
	if render.Status == "" {
		render.Status = models.RenderStatusPending
	}

	query := `
		INSERT INTO renders (` + renderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		render.ID,
		nullString(render.RenderID),
		render.Status,
		render.Target,
		render.Format,
		nullString(render.StatusURL),
		nullString(render.RenderURL),
		render.Size,
		nullString(render.Error),
		string(render.Options),
		render.CreatedAt,
		render.UpdatedAt,
	)
	return err
}

func (r *RenderRepository) GetByID(ctx context.Context, id string) (*models.Render, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	return scanRender(row)
}

func (r *RenderRepository) GetByRenderID(ctx context.Context, renderID string) (*models.Render, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE render_id = ?`, renderID)
	return scanRender(row)
}

func (r *RenderRepository) List(ctx context.Context, limit, offset int) ([]*models.Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+renderColumns+` FROM renders ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	renders := []*models.Render{}
	for rows.Next() {
		render, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, render)
	}
	return renders, rows.Err()
}

// ApplyEvent moves the render identified by event.RenderID to the status the
// event implies. It reports false when no such render is tracked.
func (r *RenderRepository) ApplyEvent(ctx context.Context, event *models.RenderEvent) (bool, error) {
	return applyEvent(ctx, r.db, event)
}

// ReplayEvents applies every stored event of render in the order received and
// returns the refreshed row. Callbacks that arrived before the render was
// created are picked up this way.
func (r *RenderRepository) ReplayEvents(ctx context.Context, render *models.Render, events []*models.RenderEvent) (*models.Render, error) {
	if len(events) == 0 {
		return render, nil
	}
	for _, event := range events {
		if _, err := applyEvent(ctx, r.db, event); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, render.ID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyEvent(ctx context.Context, db execer, event *models.RenderEvent) (bool, error) {
	status, ok := models.RenderStatus(event.Event)
	if !ok {
		return false, nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE renders
		SET status = ?, render_url = ?, size = ?, error = ?, updated_at = ?
		WHERE render_id = ?
	`, status, nullString(event.RenderURL), event.Size, nullString(event.Error), time.Now().Unix(), event.RenderID)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRender(row rowScanner) (*models.Render, error) {
	var (
		render                                   models.Render
		renderID, statusURL, renderURL, errorMsg sql.NullString
		size                                     sql.NullInt64
		options                                  string
	)

	err := row.Scan(&render.ID, &renderID, &render.Status, &render.Target, &render.Format,
		&statusURL, &renderURL, &size, &errorMsg, &options, &render.CreatedAt, &render.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	render.RenderID = renderID.String
	render.StatusURL = statusURL.String
	render.RenderURL = renderURL.String
	render.Error = errorMsg.String
	render.Size = size.Int64
	render.Options = []byte(options)

	return &render, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
