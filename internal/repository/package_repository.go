package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/model"
)

// PackageRepo provides CRUD over `packages`. Deletion is a soft flag so
// bookings and ratings keep a valid reference.
type PackageRepo struct{ db *sql.DB }

func NewPackageRepo(db *sql.DB) *PackageRepo { return &PackageRepo{db: db} }

const packageColumns = `p.id, p.package_name, p.package_description, p.package_price, p.price_per_day,
	p.price_increase_per_day, p.additional_price_percentage, p.packs, p.package_type, p.package_inclusion,
	p.package_image, p.status, p.is_deleted, p.rating, p.reviews_count, p.created_at, p.updated_at`

// bookingsCountColumn counts non-cancelled bookings per package.
const bookingsCountColumn = `(SELECT COUNT(*) FROM bookings b WHERE b.package_id = p.id AND b.status <> 'cancelled')`

func scanPackage(row interface{ Scan(...any) error }, extra ...any) (model.Package, error) {
	var (
		p          model.Package
		inclusions []byte
		image      sql.NullString
	)
	dest := []any{&p.ID, &p.Name, &p.Description, &p.Price, &p.PricePerDay, &p.PriceIncreasePerDay,
		&p.AdditionalPricePercentage, &p.Packs, &p.Type, &inclusions, &image, &p.Status, &p.Deleted,
		&p.Rating, &p.ReviewsCount, &p.CreatedAt, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Package{}, err
	}
	p.Image = stringPtr(image)
	p.Inclusions = []string{}
	if len(inclusions) > 0 {
		if err := json.Unmarshal(inclusions, &p.Inclusions); err != nil {
			return model.Package{}, err
		}
	}
	return p, nil
}

// List returns non-deleted packages; inactive ones only when requested.
func (r *PackageRepo) List(ctx context.Context, includeInactive bool) ([]model.Package, error) {
	q := "SELECT " + packageColumns + ", " + bookingsCountColumn + " FROM packages p WHERE p.is_deleted = 0"
	if !includeInactive {
		q += " AND p.status = 'active'"
	}
	q += " ORDER BY p.created_at DESC, p.id DESC"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Package{}
	for rows.Next() {
		var count int
		p, err := scanPackage(rows, &count)
		if err != nil {
			return nil, err
		}
		p.BookingsCount = count
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns a non-deleted package.
func (r *PackageRepo) Get(ctx context.Context, id uint64) (model.Package, error) {
	return r.get(ctx, r.db, id, "")
}

// GetTx reads the package inside tx; lock adds FOR UPDATE when true.
func (r *PackageRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (model.Package, error) {
	suffix := ""
	if lock {
		suffix = " FOR UPDATE"
	}
	return r.get(ctx, tx, id, suffix)
}

func (r *PackageRepo) get(ctx context.Context, q querier, id uint64, suffix string) (model.Package, error) {
	var count int
	p, err := scanPackage(q.QueryRowContext(ctx,
		"SELECT "+packageColumns+", "+bookingsCountColumn+" FROM packages p WHERE p.id = ? AND p.is_deleted = 0"+suffix, id),
		&count)
	if err != nil {
		return model.Package{}, notFound(err, ErrPackageNotFound)
	}
	p.BookingsCount = count
	return p, nil
}

// PackageInput carries the writable package fields.
type PackageInput struct {
	Name                      string
	Description               string
	Price                     decimal.Decimal
	PricePerDay               bool
	PriceIncreasePerDay       decimal.Decimal
	AdditionalPricePercentage decimal.NullDecimal
	Packs                     int
	Type                      string
	Inclusions                []string
	Image                     *string
	Status                    string
}

func (r *PackageRepo) Create(ctx context.Context, in PackageInput) (uint64, error) {
	inclusions, err := json.Marshal(nonNilStrings(in.Inclusions))
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO packages (package_name, package_description, package_price, price_per_day, price_increase_per_day,
		    additional_price_percentage, packs, package_type, package_inclusion, package_image, status)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		in.Name, in.Description, in.Price, in.PricePerDay, in.PriceIncreasePerDay, in.AdditionalPricePercentage,
		in.Packs, in.Type, inclusions, nullString(in.Image), in.Status)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// Update overwrites every writable field. Image is replaced only when set.
func (r *PackageRepo) Update(ctx context.Context, id uint64, in PackageInput) error {
	inclusions, err := json.Marshal(nonNilStrings(in.Inclusions))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE packages SET package_name=?, package_description=?, package_price=?, price_per_day=?,
		    price_increase_per_day=?, additional_price_percentage=?, packs=?, package_type=?, package_inclusion=?,
		    package_image=COALESCE(?, package_image), status=?
		 WHERE id=? AND is_deleted=0`,
		in.Name, in.Description, in.Price, in.PricePerDay, in.PriceIncreasePerDay, in.AdditionalPricePercentage,
		in.Packs, in.Type, inclusions, nullString(in.Image), in.Status, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrPackageNotFound)
}

// SoftDelete flags the package deleted and clears its image reference.
func (r *PackageRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE packages SET is_deleted=1, package_image=NULL WHERE id=? AND is_deleted=0", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrPackageNotFound)
}

// UpdateRatingTx stores the recomputed rating aggregates.
func (r *PackageRepo) UpdateRatingTx(ctx context.Context, tx *sql.Tx, id uint64, rating decimal.Decimal, count int) error {
	_, err := tx.ExecContext(ctx, "UPDATE packages SET rating=?, reviews_count=? WHERE id=?", rating, count, id)
	return err
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
