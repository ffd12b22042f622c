package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// PortfolioRepo stores showcase entries and their ordered album images.
type PortfolioRepo struct{ db *sql.DB }

func NewPortfolioRepo(db *sql.DB) *PortfolioRepo { return &PortfolioRepo{db: db} }

const portfolioColumns = "id, title, description, event_type, main_image, status, is_deleted, created_at, updated_at"

func scanPortfolio(row interface{ Scan(...any) error }) (model.Portfolio, error) {
	var p model.Portfolio
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.EventType, &p.MainImage, &p.Status, &p.Deleted,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns non-deleted portfolios with their images.
func (r *PortfolioRepo) List(ctx context.Context, includeInactive bool) ([]model.Portfolio, error) {
	q := "SELECT " + portfolioColumns + " FROM portfolios WHERE is_deleted=0"
	if !includeInactive {
		q += " AND status='active'"
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	out := []model.Portfolio{}
	index := map[uint64]int{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		p.Images = []string{}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	img, err := r.db.QueryContext(ctx,
		`SELECT pi.portfolio_id, pi.path FROM portfolio_images pi
		 JOIN portfolios p ON p.id = pi.portfolio_id WHERE p.is_deleted=0 ORDER BY pi.portfolio_id, pi.position`)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	for img.Next() {
		var (
			id   uint64
			path string
		)
		if err := img.Scan(&id, &path); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].Images = append(out[i].Images, path)
		}
	}
	return out, img.Err()
}

func (r *PortfolioRepo) Get(ctx context.Context, id uint64) (model.Portfolio, error) {
	return r.get(ctx, r.db, id, "")
}

func (r *PortfolioRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Portfolio, error) {
	return r.get(ctx, tx, id, " FOR UPDATE")
}

func (r *PortfolioRepo) get(ctx context.Context, q querier, id uint64, suffix string) (model.Portfolio, error) {
	p, err := scanPortfolio(q.QueryRowContext(ctx,
		"SELECT "+portfolioColumns+" FROM portfolios WHERE id=? AND is_deleted=0"+suffix, id))
	if err != nil {
		return model.Portfolio{}, notFound(err, ErrPortfolioNotFound)
	}
	rows, err := q.QueryContext(ctx,
		"SELECT path FROM portfolio_images WHERE portfolio_id=? ORDER BY position", id)
	if err != nil {
		return model.Portfolio{}, err
	}
	defer rows.Close()
	p.Images = []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return model.Portfolio{}, err
		}
		p.Images = append(p.Images, path)
	}
	return p, rows.Err()
}

// PortfolioInput carries the writable fields.
type PortfolioInput struct {
	Title       string
	Description string
	EventType   string
	MainImage   string // empty keeps the current cover on update
	Status      string
}

func (r *PortfolioRepo) CreateTx(ctx context.Context, tx *sql.Tx, in PortfolioInput, images []string) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO portfolios (title, description, event_type, main_image, status) VALUES (?,?,?,?,?)",
		in.Title, in.Description, in.EventType, in.MainImage, in.Status)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), r.ReplaceImagesTx(ctx, tx, uint64(id), images)
}

func (r *PortfolioRepo) UpdateTx(ctx context.Context, tx *sql.Tx, id uint64, in PortfolioInput) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET title=?, description=?, event_type=?, main_image=COALESCE(NULLIF(?, ''), main_image),
		    status=? WHERE id=? AND is_deleted=0`,
		in.Title, in.Description, in.EventType, in.MainImage, in.Status, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrPortfolioNotFound)
}

// ReplaceImagesTx rewrites the album in the given order.
func (r *PortfolioRepo) ReplaceImagesTx(ctx context.Context, tx *sql.Tx, id uint64, images []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM portfolio_images WHERE portfolio_id=?", id); err != nil {
		return err
	}
	if len(images) == 0 {
		return nil
	}
	values := make([]string, 0, len(images))
	args := make([]any, 0, len(images)*3)
	for i, path := range images {
		values = append(values, "(?,?,?)")
		args = append(args, id, path, i)
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO portfolio_images (portfolio_id, path, position) VALUES "+strings.Join(values, ","), args...)
	return err
}

// SoftDeleteTx flags the portfolio deleted and drops its album rows.
func (r *PortfolioRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE portfolios SET is_deleted=1 WHERE id=? AND is_deleted=0", id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, ErrPortfolioNotFound); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM portfolio_images WHERE portfolio_id=?", id)
	return err
}
