package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// RatingService writes reviews and keeps each package's cached rating and
// review count equal to the aggregate over its active ratings.
type RatingService struct {
	db       *sql.DB
	ratings  *repository.RatingRepo
	packages *repository.PackageRepo
	bookings *repository.BookingRepo
	log      *logging.Logger
}

func NewRatingService(db *sql.DB, log *logging.Logger) *RatingService {
	return &RatingService{
		db:       db,
		ratings:  repository.NewRatingRepo(db),
		packages: repository.NewPackageRepo(db),
		bookings: repository.NewBookingRepo(db),
		log:      log,
	}
}

type CreateRatingInput struct {
	BookingID uint64  `json:"booking_id" validate:"required"`
	PackageID uint64  `json:"package_id" validate:"required"`
	Rating    int     `json:"rating" validate:"required,min=1,max=5"`
	Review    *string `json:"review" validate:"omitempty,max=2000"`
}

// Aggregate rounds the mean of count ratings summing to sum to one decimal.
func Aggregate(sum int64, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(count))).Round(1)
}

// Create stores the rating and recomputes the package aggregates in the same
// transaction. A user may rate each booking once.
func (s *RatingService) Create(ctx context.Context, actor Actor, in CreateRatingInput) (model.Rating, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return model.Rating{}, apperror.Validation("rating", "must be between 1 and 5")
	}
	if in.Review != nil {
		trimmed := strings.TrimSpace(*in.Review)
		in.Review = &trimmed
	}

	var id uint64
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.packages.GetTx(ctx, tx, in.PackageID, true); err != nil {
			return err
		}
		b, err := s.bookings.GetForUpdateTx(ctx, tx, in.BookingID)
		if err != nil {
			return err
		}
		if b.UserID != actor.UserID {
			return apperror.Forbidden("booking belongs to another user")
		}
		if b.PackageID != in.PackageID {
			return apperror.Validation("package_id", "booking is for a different package")
		}
		exists, err := s.ratings.ExistsForBookingTx(ctx, tx, actor.UserID, in.BookingID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("booking has already been rated")
		}
		bookingID := in.BookingID
		id, err = s.ratings.CreateTx(ctx, tx, model.Rating{
			UserID: actor.UserID, PackageID: in.PackageID, BookingID: &bookingID, Rating: in.Rating, Review: in.Review,
		})
		if err != nil {
			return err
		}
		return s.recompute(ctx, tx, in.PackageID)
	})
	if err != nil {
		return model.Rating{}, translate(err, "create rating")
	}
	rt, err := s.ratings.Get(ctx, id)
	return rt, translate(err, "reload rating")
}

// recompute re-scans the package's active ratings and stores the result.
func (s *RatingService) recompute(ctx context.Context, tx *sql.Tx, packageID uint64) error {
	return recomputeRating(ctx, tx, s.ratings, s.packages, packageID)
}

// recomputeRating is shared with account deletion, which drops ratings
// through a foreign key.
func recomputeRating(ctx context.Context, tx *sql.Tx, ratings *repository.RatingRepo, packages *repository.PackageRepo, packageID uint64) error {
	sum, count, err := ratings.AggregateTx(ctx, tx, packageID)
	if err != nil {
		return err
	}
	return packages.UpdateRatingTx(ctx, tx, packageID, Aggregate(sum, count), count)
}

// SetStatus flags or re-activates a rating; the package aggregate follows.
func (s *RatingService) SetStatus(ctx context.Context, id uint64, status string) (model.Rating, error) {
	if status != model.RatingActive && status != model.RatingFlagged {
		return model.Rating{}, apperror.Validation("status", "must be active or flagged")
	}
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		rt, err := s.ratings.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.ratings.SetStatusTx(ctx, tx, id, status); err != nil {
			return err
		}
		return s.recompute(ctx, tx, rt.PackageID)
	})
	if err != nil {
		return model.Rating{}, translate(err, "update rating status")
	}
	rt, err := s.ratings.Get(ctx, id)
	return rt, translate(err, "reload rating")
}

// Delete soft-deletes a rating and recomputes its package.
func (s *RatingService) Delete(ctx context.Context, id uint64) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		rt, err := s.ratings.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.ratings.SoftDeleteTx(ctx, tx, id); err != nil {
			return err
		}
		return s.recompute(ctx, tx, rt.PackageID)
	})
	return translate(err, "delete rating")
}

// ListForPackage returns the public reviews with a 1..5 distribution.
func (s *RatingService) ListForPackage(ctx context.Context, packageID uint64) (model.RatingSummary, error) {
	if _, err := s.packages.Get(ctx, packageID); err != nil {
		return model.RatingSummary{}, translate(err, "load package")
	}
	reviews, err := s.ratings.ListActiveForPackage(ctx, packageID)
	if err != nil {
		return model.RatingSummary{}, translate(err, "list ratings")
	}
	return Summarize(reviews), nil
}

// Summarize computes average, total and distribution over ratings.
func Summarize(reviews []model.Rating) model.RatingSummary {
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	var sum int64
	for _, r := range reviews {
		dist[r.Rating]++
		sum += int64(r.Rating)
	}
	return model.RatingSummary{
		Average:      Aggregate(sum, len(reviews)),
		Total:        len(reviews),
		Distribution: dist,
		Reviews:      reviews,
	}
}

func (s *RatingService) ListAll(ctx context.Context, status string) ([]model.Rating, error) {
	if status != "" && status != model.RatingActive && status != model.RatingFlagged {
		return nil, apperror.Validation("status", "must be active or flagged")
	}
	out, err := s.ratings.ListAll(ctx, status)
	return out, translate(err, "list ratings")
}

func (s *RatingService) ListMine(ctx context.Context, actor Actor) ([]model.Rating, error) {
	out, err := s.ratings.ListByUser(ctx, actor.UserID)
	return out, translate(err, "list ratings")
}
