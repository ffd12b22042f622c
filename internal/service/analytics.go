package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Trend is the percentage change from previous to current, rounded to one
// decimal. With no previous value it is 100 when current is positive and 0
// otherwise.
func Trend(current, previous float64) float64 {
	if previous > 0 {
		return round1((current - previous) / previous * 100)
	}
	if current > 0 {
		return 100
	}
	return 0
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// AnalyticsService computes the admin dashboard rollups. Every window is
// derived from now, which tests replace.
type AnalyticsService struct {
	repo *repository.AnalyticsRepo
	now  func() time.Time
}

func NewAnalyticsService(db *sql.DB) *AnalyticsService {
	return &AnalyticsService{repo: repository.NewAnalyticsRepo(db), now: time.Now}
}

type window struct{ from, to time.Time }

func (s *AnalyticsService) today() window {
	start := startOfDay(s.now().UTC())
	return window{start, start.AddDate(0, 0, 1)}
}

func (s *AnalyticsService) yesterday() window {
	t := s.today()
	return window{t.from.AddDate(0, 0, -1), t.from}
}

func (s *AnalyticsService) month(offset int) window {
	n := s.now().UTC()
	start := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
	return window{start, start.AddDate(0, 1, 0)}
}

type ActiveUsers struct {
	TotalActive  int     `json:"total_active"`
	NewToday     int     `json:"new_today"`
	NewYesterday int     `json:"new_yesterday"`
	Trend        float64 `json:"trend"`
}

func (s *AnalyticsService) ActiveUsers(ctx context.Context) (ActiveUsers, error) {
	t, y := s.today(), s.yesterday()
	total, err := s.repo.ActiveUsers(ctx)
	if err != nil {
		return ActiveUsers{}, translate(err, "count active users")
	}
	cur, err := s.repo.NewActiveUsers(ctx, t.from, t.to)
	if err != nil {
		return ActiveUsers{}, translate(err, "count new users")
	}
	prev, err := s.repo.NewActiveUsers(ctx, y.from, y.to)
	if err != nil {
		return ActiveUsers{}, translate(err, "count new users")
	}
	return ActiveUsers{TotalActive: total, NewToday: cur, NewYesterday: prev, Trend: Trend(float64(cur), float64(prev))}, nil
}

// Satisfaction compares average active ratings of two windows. Percentage
// is average/5*100.
type Satisfaction struct {
	Average            decimal.Decimal `json:"average_rating"`
	Percentage         float64         `json:"percentage"`
	PreviousPercentage float64         `json:"previous_percentage"`
	Reviews            int             `json:"reviews"`
	Trend              float64         `json:"trend"`
}

func (s *AnalyticsService) Satisfaction(ctx context.Context) (Satisfaction, error) {
	return s.satisfaction(ctx, s.today(), s.yesterday())
}

func (s *AnalyticsService) MonthlySatisfaction(ctx context.Context) (Satisfaction, error) {
	return s.satisfaction(ctx, s.month(0), s.month(-1))
}

func (s *AnalyticsService) satisfaction(ctx context.Context, cur, prev window) (Satisfaction, error) {
	avg, n, err := s.repo.RatingStats(ctx, cur.from, cur.to)
	if err != nil {
		return Satisfaction{}, translate(err, "rating stats")
	}
	prevAvg, _, err := s.repo.RatingStats(ctx, prev.from, prev.to)
	if err != nil {
		return Satisfaction{}, translate(err, "rating stats")
	}
	pct, prevPct := percentOfFive(avg), percentOfFive(prevAvg)
	return Satisfaction{
		Average:            avg.Round(1),
		Percentage:         pct,
		PreviousPercentage: prevPct,
		Reviews:            n,
		Trend:              Trend(pct, prevPct),
	}, nil
}

func percentOfFive(avg decimal.Decimal) float64 {
	return round1(avg.InexactFloat64() / 5 * 100)
}

type Revenue struct {
	Today             decimal.Decimal `json:"today"`
	Yesterday         decimal.Decimal `json:"yesterday"`
	PaymentsToday     int             `json:"payments_today"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	Trend             float64         `json:"trend"`
}

func (s *AnalyticsService) Revenue(ctx context.Context) (Revenue, error) {
	t, y := s.today(), s.yesterday()
	cur, n, err := s.repo.PaymentStats(ctx, t.from, t.to)
	if err != nil {
		return Revenue{}, translate(err, "payment stats")
	}
	prev, _, err := s.repo.PaymentStats(ctx, y.from, y.to)
	if err != nil {
		return Revenue{}, translate(err, "payment stats")
	}
	aov := decimal.Zero
	if n > 0 {
		aov = cur.Div(decimal.NewFromInt(int64(n))).Round(2)
	}
	return Revenue{
		Today:             cur.Round(2),
		Yesterday:         prev.Round(2),
		PaymentsToday:     n,
		AverageOrderValue: aov,
		Trend:             Trend(cur.InexactFloat64(), prev.InexactFloat64()),
	}, nil
}

type TypeBreakdown struct {
	Type           string          `json:"type"`
	Bookings       int             `json:"bookings"`
	Revenue        decimal.Decimal `json:"revenue"`
	CompletionRate float64         `json:"completion_rate"`
	Trend          float64         `json:"trend"`
}

// BookingsByType groups today's non-cancelled bookings by package type and
// trends each type's count against yesterday.
func (s *AnalyticsService) BookingsByType(ctx context.Context) ([]TypeBreakdown, error) {
	t, y := s.today(), s.yesterday()
	cur, err := s.repo.BookingsByType(ctx, t.from, t.to)
	if err != nil {
		return nil, translate(err, "bookings by type")
	}
	prev, err := s.repo.BookingsByType(ctx, y.from, y.to)
	if err != nil {
		return nil, translate(err, "bookings by type")
	}
	before := make(map[string]int, len(prev))
	for _, p := range prev {
		before[p.Type] = p.Bookings
	}
	out := make([]TypeBreakdown, 0, len(cur))
	for _, c := range cur {
		rate := 0.0
		if c.Bookings > 0 {
			rate = round1(float64(c.Completed) / float64(c.Bookings) * 100)
		}
		out = append(out, TypeBreakdown{
			Type:           c.Type,
			Bookings:       c.Bookings,
			Revenue:        c.Revenue.Round(2),
			CompletionRate: rate,
			Trend:          Trend(float64(c.Bookings), float64(before[c.Type])),
		})
	}
	return out, nil
}

type MonthRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

type MonthlyRevenue struct {
	Year   int             `json:"year"`
	Months []MonthRevenue  `json:"months"`
	Total  decimal.Decimal `json:"total"`
}

func (s *AnalyticsService) MonthlyRevenue(ctx context.Context) (MonthlyRevenue, error) {
	year := s.now().UTC().Year()
	sums, err := s.repo.MonthlyRevenue(ctx, year)
	if err != nil {
		return MonthlyRevenue{}, translate(err, "monthly revenue")
	}
	out := MonthlyRevenue{Year: year, Months: make([]MonthRevenue, 12), Total: decimal.Zero}
	for i, v := range sums {
		out.Months[i] = MonthRevenue{Month: time.Month(i + 1).String()[:3], Revenue: v.Round(2)}
		out.Total = out.Total.Add(v)
	}
	out.Total = out.Total.Round(2)
	return out, nil
}

type PopularPackage struct {
	PackageID uint64          `json:"package_id"`
	Name      string          `json:"package_name"`
	Type      string          `json:"package_type"`
	Bookings  int             `json:"bookings"`
	Revenue   decimal.Decimal `json:"revenue"`
	Rating    decimal.Decimal `json:"rating"`
}

const popularPackagesLimit = 3

// PopularPackages ranks the top packages by booked revenue over 30 days.
func (s *AnalyticsService) PopularPackages(ctx context.Context) ([]PopularPackage, error) {
	since := s.today().to.AddDate(0, 0, -30)
	stats, err := s.repo.PopularPackages(ctx, since, popularPackagesLimit)
	if err != nil {
		return nil, translate(err, "popular packages")
	}
	out := make([]PopularPackage, 0, len(stats))
	for _, p := range stats {
		out = append(out, PopularPackage{
			PackageID: p.PackageID, Name: p.Name, Type: p.Type, Bookings: p.Bookings,
			Revenue: p.Revenue.Round(2), Rating: p.Rating,
		})
	}
	return out, nil
}

type EventTypeShare struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

func (s *AnalyticsService) EventTypes(ctx context.Context) ([]EventTypeShare, error) {
	rows, err := s.repo.EventTypes(ctx)
	if err != nil {
		return nil, translate(err, "event types")
	}
	total := 0
	for _, r := range rows {
		total += r.Count
	}
	out := make([]EventTypeShare, 0, len(rows))
	for _, r := range rows {
		pct := 0.0
		if total > 0 {
			pct = round1(float64(r.Count) / float64(total) * 100)
		}
		out = append(out, EventTypeShare{Type: r.Key, Count: r.Count, Percentage: pct})
	}
	return out, nil
}

type Summary struct {
	Users            int             `json:"users"`
	Packages         int             `json:"packages"`
	Bookings         int             `json:"bookings"`
	BookingsByStatus map[string]int  `json:"bookings_by_status"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
}

func (s *AnalyticsService) Summary(ctx context.Context) (Summary, error) {
	users, packages, revenue, err := s.repo.Totals(ctx)
	if err != nil {
		return Summary{}, translate(err, "summary totals")
	}
	byStatus, err := s.repo.BookingsByStatus(ctx)
	if err != nil {
		return Summary{}, translate(err, "bookings by status")
	}
	out := Summary{Users: users, Packages: packages, TotalRevenue: revenue.Round(2), BookingsByStatus: map[string]int{
		model.BookingPending: 0, model.BookingConfirmed: 0, model.BookingOngoing: 0,
		model.BookingPreparing: 0, model.BookingCompleted: 0, model.BookingCancelled: 0,
	}}
	for _, c := range byStatus {
		out.BookingsByStatus[c.Key] = c.Count
		out.Bookings += c.Count
	}
	return out, nil
}
