package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-booking/internal/model"
)

// RatingRepo stores package reviews. Only active, non-deleted rows count
// towards a package's aggregates.
type RatingRepo struct{ db *sql.DB }

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

const ratingColumns = `r.id, r.user_id, r.package_id, r.booking_id, r.rating, r.review, r.status, r.is_deleted,
	r.created_at, r.updated_at, TRIM(CONCAT(COALESCE(u.first_name, ''), ' ', COALESCE(u.last_name, ''))), u.avatar,
	COALESCE(p.package_name, '')`

const ratingFrom = ` FROM ratings r LEFT JOIN users u ON u.id = r.user_id LEFT JOIN packages p ON p.id = r.package_id`

func scanRating(row interface{ Scan(...any) error }) (model.Rating, error) {
	var (
		rt      model.Rating
		booking sql.NullInt64
		review  sql.NullString
		avatar  sql.NullString
	)
	err := row.Scan(&rt.ID, &rt.UserID, &rt.PackageID, &booking, &rt.Rating, &review, &rt.Status, &rt.Deleted,
		&rt.CreatedAt, &rt.UpdatedAt, &rt.ReviewerName, &avatar, &rt.PackageName)
	if err != nil {
		return model.Rating{}, err
	}
	rt.BookingID = uintPtr(booking)
	rt.Review = stringPtr(review)
	rt.ReviewerAvatar = stringPtr(avatar)
	return rt, nil
}

func collectRatings(rows *sql.Rows) ([]model.Rating, error) {
	defer rows.Close()
	out := []model.Rating{}
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// ExistsForBookingTx reports whether the user already rated the booking.
func (r *RatingRepo) ExistsForBookingTx(ctx context.Context, tx *sql.Tx, userID, bookingID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ratings WHERE user_id=? AND booking_id=? AND is_deleted=0", userID, bookingID).Scan(&n)
	return n > 0, err
}

// CreateTx inserts an active rating and returns its id.
func (r *RatingRepo) CreateTx(ctx context.Context, tx *sql.Tx, rt model.Rating) (uint64, error) {
	var booking sql.NullInt64
	if rt.BookingID != nil {
		booking = sql.NullInt64{Int64: int64(*rt.BookingID), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO ratings (user_id, package_id, booking_id, rating, review, status) VALUES (?,?,?,?,?,?)",
		rt.UserID, rt.PackageID, booking, rt.Rating, nullString(rt.Review), model.RatingActive)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// RatedPackagesTx lists the packages a user has live ratings on.
func (r *RatingRepo) RatedPackagesTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT DISTINCT package_id FROM ratings WHERE user_id=? AND is_deleted=0 ORDER BY package_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AggregateTx scans every active rating of a package and returns their sum
// and count.
func (r *RatingRepo) AggregateTx(ctx context.Context, tx *sql.Tx, packageID uint64) (sum int64, count int, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM ratings
		 WHERE package_id=? AND status='active' AND is_deleted=0`, packageID).Scan(&sum, &count)
	return sum, count, err
}

// GetForUpdateTx locks a rating row.
func (r *RatingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Rating, error) {
	rt, err := scanRating(tx.QueryRowContext(ctx,
		"SELECT "+ratingColumns+ratingFrom+" WHERE r.id=? AND r.is_deleted=0 FOR UPDATE", id))
	return rt, notFound(err, ErrRatingNotFound)
}

func (r *RatingRepo) Get(ctx context.Context, id uint64) (model.Rating, error) {
	rt, err := scanRating(r.db.QueryRowContext(ctx,
		"SELECT "+ratingColumns+ratingFrom+" WHERE r.id=? AND r.is_deleted=0", id))
	return rt, notFound(err, ErrRatingNotFound)
}

func (r *RatingRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	res, err := tx.ExecContext(ctx, "UPDATE ratings SET status=? WHERE id=? AND is_deleted=0", status, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrRatingNotFound)
}

func (r *RatingRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE ratings SET is_deleted=1 WHERE id=? AND is_deleted=0", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrRatingNotFound)
}

// ListActiveForPackage returns the public reviews of a package, newest first.
func (r *RatingRepo) ListActiveForPackage(ctx context.Context, packageID uint64) ([]model.Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ratingColumns+ratingFrom+
			" WHERE r.package_id=? AND r.status='active' AND r.is_deleted=0 ORDER BY r.created_at DESC, r.id DESC",
		packageID)
	if err != nil {
		return nil, err
	}
	return collectRatings(rows)
}

// ListByUser returns a user's non-deleted ratings.
func (r *RatingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ratingColumns+ratingFrom+" WHERE r.user_id=? AND r.is_deleted=0 ORDER BY r.created_at DESC, r.id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	return collectRatings(rows)
}

// ListAll returns every non-deleted rating for moderation.
func (r *RatingRepo) ListAll(ctx context.Context, status string) ([]model.Rating, error) {
	q := "SELECT " + ratingColumns + ratingFrom + " WHERE r.is_deleted=0"
	var args []any
	if status != "" {
		q += " AND r.status=?"
		args = append(args, status)
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY r.created_at DESC, r.id DESC", args...)
	if err != nil {
		return nil, err
	}
	return collectRatings(rows)
}
