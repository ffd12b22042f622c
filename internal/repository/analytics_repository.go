package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsRepo runs the read-only rollups behind the admin dashboard.
// Every window is half-open: [from, to).
type AnalyticsRepo struct{ db *sql.DB }

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

// TypeStat aggregates live bookings for one package type.
type TypeStat struct {
	Type      string
	Bookings  int
	Completed int
	Revenue   decimal.Decimal
}

// PackageStat ranks a package by booked revenue.
type PackageStat struct {
	PackageID uint64
	Name      string
	Type      string
	Bookings  int
	Revenue   decimal.Decimal
	Rating    decimal.Decimal
}

// StatusCount is one row of a GROUP BY status/type query.
type StatusCount struct {
	Key   string
	Count int
}

func (r *AnalyticsRepo) NewActiveUsers(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE status='active' AND created_at >= ? AND created_at < ?", from, to).Scan(&n)
	return n, err
}

func (r *AnalyticsRepo) ActiveUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE status='active'").Scan(&n)
	return n, err
}

// RatingStats returns the average and count of active ratings in the window.
func (r *AnalyticsRepo) RatingStats(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	var (
		avg   decimal.NullDecimal
		count int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT AVG(rating), COUNT(*) FROM ratings
		 WHERE status='active' AND is_deleted=0 AND created_at >= ? AND created_at < ?`, from, to).Scan(&avg, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return avg.Decimal, count, nil
}

// PaymentStats returns the payment total and count recorded in the window.
func (r *AnalyticsRepo) PaymentStats(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	var (
		sum   decimal.Decimal
		count int
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM payments WHERE created_at >= ? AND created_at < ?",
		from, to).Scan(&sum, &count)
	return sum, count, err
}

// BookingsByType groups non-cancelled bookings created in the window.
func (r *AnalyticsRepo) BookingsByType(ctx context.Context, from, to time.Time) ([]TypeStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(p.package_type, ''), COUNT(*), SUM(b.status='completed'), COALESCE(SUM(b.total_price), 0)
		 FROM bookings b LEFT JOIN packages p ON p.id = b.package_id
		 WHERE b.status <> 'cancelled' AND b.created_at >= ? AND b.created_at < ?
		 GROUP BY p.package_type ORDER BY COUNT(*) DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TypeStat{}
	for rows.Next() {
		var s TypeStat
		if err := rows.Scan(&s.Type, &s.Bookings, &s.Completed, &s.Revenue); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MonthlyRevenue sums payments per calendar month of year. Index 0 is January.
func (r *AnalyticsRepo) MonthlyRevenue(ctx context.Context, year int) ([12]decimal.Decimal, error) {
	var out [12]decimal.Decimal
	for i := range out {
		out[i] = decimal.Zero
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := r.db.QueryContext(ctx,
		`SELECT MONTH(created_at), COALESCE(SUM(amount), 0) FROM payments
		 WHERE created_at >= ? AND created_at < ? GROUP BY MONTH(created_at)`, from, from.AddDate(1, 0, 0))
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			month int
			sum   decimal.Decimal
		)
		if err := rows.Scan(&month, &sum); err != nil {
			return out, err
		}
		if month >= 1 && month <= 12 {
			out[month-1] = sum
		}
	}
	return out, rows.Err()
}

// PopularPackages ranks packages by revenue from non-cancelled bookings since the given time.
func (r *AnalyticsRepo) PopularPackages(ctx context.Context, since time.Time, limit int) ([]PackageStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.package_name, p.package_type, COUNT(b.id), COALESCE(SUM(b.total_price), 0), p.rating
		 FROM bookings b JOIN packages p ON p.id = b.package_id
		 WHERE b.status <> 'cancelled' AND b.created_at >= ?
		 GROUP BY p.id, p.package_name, p.package_type, p.rating
		 ORDER BY SUM(b.total_price) DESC, COUNT(b.id) DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PackageStat{}
	for rows.Next() {
		var s PackageStat
		if err := rows.Scan(&s.PackageID, &s.Name, &s.Type, &s.Bookings, &s.Revenue, &s.Rating); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventTypes counts every live booking by package type.
func (r *AnalyticsRepo) EventTypes(ctx context.Context) ([]StatusCount, error) {
	return r.counts(ctx,
		`SELECT COALESCE(p.package_type, 'unknown'), COUNT(*) FROM bookings b
		 LEFT JOIN packages p ON p.id = b.package_id GROUP BY p.package_type ORDER BY COUNT(*) DESC`)
}

func (r *AnalyticsRepo) BookingsByStatus(ctx context.Context) ([]StatusCount, error) {
	return r.counts(ctx, "SELECT status, COUNT(*) FROM bookings GROUP BY status ORDER BY status")
}

func (r *AnalyticsRepo) counts(ctx context.Context, q string) ([]StatusCount, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StatusCount{}
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Totals returns overall user, package and revenue figures for the summary card.
func (r *AnalyticsRepo) Totals(ctx context.Context) (users, packages int, revenue decimal.Decimal, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users WHERE role='user'),
		        (SELECT COUNT(*) FROM packages WHERE is_deleted=0),
		        (SELECT COALESCE(SUM(amount), 0) FROM payments)`).Scan(&users, &packages, &revenue)
	return
}
