package service

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/storage"
)

// FileStore is implemented by storage.LocalStore.
type FileStore interface {
	Save(ctx context.Context, cat storage.Category, r io.Reader) (string, error)
	Delete(path string) error
	DeleteAll(paths ...string) error
}

// CatalogService manages packages and portfolios together with the image
// files they reference. Replaced or deleted entities lose their files.
type CatalogService struct {
	db         *sql.DB
	packages   *repository.PackageRepo
	portfolios *repository.PortfolioRepo
	files      FileStore
	log        *logging.Logger
}

func NewCatalogService(db *sql.DB, files FileStore, log *logging.Logger) *CatalogService {
	return &CatalogService{
		db:         db,
		packages:   repository.NewPackageRepo(db),
		portfolios: repository.NewPortfolioRepo(db),
		files:      files,
		log:        log,
	}
}

// PackageForm is the multipart form for creating or updating a package.
// Money fields arrive as strings and are parsed exactly.
type PackageForm struct {
	Name                      string   `form:"package_name" validate:"required,max=255"`
	Description               string   `form:"package_description" validate:"required"`
	Price                     string   `form:"package_price" validate:"required,numeric"`
	PricePerDay               bool     `form:"price_per_day"`
	PriceIncreasePerDay       string   `form:"price_increase_per_day" validate:"omitempty,numeric"`
	AdditionalPricePercentage string   `form:"additional_price_percentage" validate:"omitempty,numeric"`
	Packs                     int      `form:"packs" validate:"required,min=1,max=500"`
	Type                      string   `form:"package_type" validate:"required,max=100"`
	Inclusions                []string `form:"package_inclusion"`
	Status                    string   `form:"status" validate:"omitempty,oneof=active inactive"`
}

func (f PackageForm) input() (repository.PackageInput, error) {
	price, err := decimal.NewFromString(f.Price)
	if err != nil || !price.IsPositive() {
		return repository.PackageInput{}, apperror.Validation("package_price", "must be greater than 0")
	}
	perDay := decimal.Zero
	if f.PriceIncreasePerDay != "" {
		if perDay, err = decimal.NewFromString(f.PriceIncreasePerDay); err != nil || perDay.IsNegative() {
			return repository.PackageInput{}, apperror.Validation("price_increase_per_day", "must be 0 or more")
		}
	}
	var pct decimal.NullDecimal
	if f.AdditionalPricePercentage != "" {
		v, err := decimal.NewFromString(f.AdditionalPricePercentage)
		if err != nil || v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
			return repository.PackageInput{}, apperror.Validation("additional_price_percentage", "must be between 0 and 100")
		}
		pct = decimal.NewNullDecimal(v)
	}
	status := f.Status
	if status == "" {
		status = model.PackageActive
	}
	inclusions := make([]string, 0, len(f.Inclusions))
	for _, s := range f.Inclusions {
		if s = strings.TrimSpace(s); s != "" {
			inclusions = append(inclusions, s)
		}
	}
	return repository.PackageInput{
		Name:                      strings.TrimSpace(f.Name),
		Description:               strings.TrimSpace(f.Description),
		Price:                     price.Round(2),
		PricePerDay:               f.PricePerDay,
		PriceIncreasePerDay:       perDay.Round(2),
		AdditionalPricePercentage: pct,
		Packs:                     f.Packs,
		Type:                      strings.TrimSpace(f.Type),
		Inclusions:                inclusions,
		Status:                    status,
	}, nil
}

func (s *CatalogService) ListPackages(ctx context.Context, includeInactive bool) ([]model.Package, error) {
	out, err := s.packages.List(ctx, includeInactive)
	return out, translate(err, "list packages")
}

// GetPackage hides inactive packages unless includeInactive is set.
func (s *CatalogService) GetPackage(ctx context.Context, id uint64, includeInactive bool) (model.Package, error) {
	p, err := s.packages.Get(ctx, id)
	if err != nil {
		return model.Package{}, translate(err, "load package")
	}
	if !includeInactive && p.Status != model.PackageActive {
		return model.Package{}, apperror.NotFound("package")
	}
	return p, nil
}

// CreatePackage stores the optional image and then the package row.
func (s *CatalogService) CreatePackage(ctx context.Context, form PackageForm, image io.Reader) (model.Package, error) {
	in, err := form.input()
	if err != nil {
		return model.Package{}, err
	}
	saved, err := s.saveOptional(ctx, storage.Packages, image, "package_image")
	if err != nil {
		return model.Package{}, err
	}
	in.Image = saved
	id, err := s.packages.Create(ctx, in)
	if err != nil {
		s.discard(ctx, saved)
		return model.Package{}, translate(err, "create package")
	}
	return s.GetPackage(ctx, id, true)
}

// UpdatePackage overwrites the package; a new image replaces (and deletes)
// the previous one.
func (s *CatalogService) UpdatePackage(ctx context.Context, id uint64, form PackageForm, image io.Reader) (model.Package, error) {
	in, err := form.input()
	if err != nil {
		return model.Package{}, err
	}
	current, err := s.packages.Get(ctx, id)
	if err != nil {
		return model.Package{}, translate(err, "load package")
	}
	saved, err := s.saveOptional(ctx, storage.Packages, image, "package_image")
	if err != nil {
		return model.Package{}, err
	}
	in.Image = saved
	if err := s.packages.Update(ctx, id, in); err != nil {
		s.discard(ctx, saved)
		return model.Package{}, translate(err, "update package")
	}
	if saved != nil && current.Image != nil {
		s.discard(ctx, current.Image)
	}
	return s.GetPackage(ctx, id, true)
}

// DeletePackage soft-deletes the package and removes its image file.
func (s *CatalogService) DeletePackage(ctx context.Context, id uint64) error {
	current, err := s.packages.Get(ctx, id)
	if err != nil {
		return translate(err, "load package")
	}
	if err := s.packages.SoftDelete(ctx, id); err != nil {
		return translate(err, "delete package")
	}
	s.discard(ctx, current.Image)
	return nil
}

// PortfolioForm is the multipart form for portfolios. On update,
// ExistingImages lists album paths to keep (all when empty) and
// RemovedImages lists paths to drop.
type PortfolioForm struct {
	Title          string   `form:"title" validate:"required,max=255"`
	Description    string   `form:"description"`
	EventType      string   `form:"event_type" validate:"required,max=100"`
	Status         string   `form:"status" validate:"omitempty,oneof=active inactive"`
	ExistingImages []string `form:"existing_images"`
	RemovedImages  []string `form:"removed_images"`
}

func (f PortfolioForm) input() repository.PortfolioInput {
	status := f.Status
	if status == "" {
		status = model.PackageActive
	}
	return repository.PortfolioInput{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		EventType:   strings.TrimSpace(f.EventType),
		Status:      status,
	}
}

func (s *CatalogService) ListPortfolios(ctx context.Context, includeInactive bool) ([]model.Portfolio, error) {
	out, err := s.portfolios.List(ctx, includeInactive)
	return out, translate(err, "list portfolios")
}

func (s *CatalogService) GetPortfolio(ctx context.Context, id uint64, includeInactive bool) (model.Portfolio, error) {
	p, err := s.portfolios.Get(ctx, id)
	if err != nil {
		return model.Portfolio{}, translate(err, "load portfolio")
	}
	if !includeInactive && p.Status != model.PackageActive {
		return model.Portfolio{}, apperror.NotFound("portfolio")
	}
	return p, nil
}

// CreatePortfolio requires a main image; album images are optional.
func (s *CatalogService) CreatePortfolio(ctx context.Context, form PortfolioForm, main io.Reader, album []io.Reader) (model.Portfolio, error) {
	if main == nil {
		return model.Portfolio{}, apperror.Validation("main_image", "is required")
	}
	mainPath, err := s.saveOptional(ctx, storage.Portfolios, main, "main_image")
	if err != nil {
		return model.Portfolio{}, err
	}
	albumPaths, err := s.saveAll(ctx, album)
	if err != nil {
		s.discard(ctx, mainPath)
		return model.Portfolio{}, err
	}
	in := form.input()
	in.MainImage = *mainPath

	var id uint64
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		id, err = s.portfolios.CreateTx(ctx, tx, in, albumPaths)
		return err
	})
	if err != nil {
		s.discard(ctx, mainPath)
		s.discardAll(ctx, albumPaths)
		return model.Portfolio{}, translate(err, "create portfolio")
	}
	return s.GetPortfolio(ctx, id, true)
}

// UpdatePortfolio rewrites fields and the album. Files no longer referenced
// are removed after the commit.
func (s *CatalogService) UpdatePortfolio(ctx context.Context, id uint64, form PortfolioForm, main io.Reader, album []io.Reader) (model.Portfolio, error) {
	mainPath, err := s.saveOptional(ctx, storage.Portfolios, main, "main_image")
	if err != nil {
		return model.Portfolio{}, err
	}
	added, err := s.saveAll(ctx, album)
	if err != nil {
		s.discard(ctx, mainPath)
		return model.Portfolio{}, err
	}
	in := form.input()
	if mainPath != nil {
		in.MainImage = *mainPath
	}

	var stale []string
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.portfolios.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		keep := KeepImages(current.Images, form.ExistingImages, form.RemovedImages)
		if err := s.portfolios.UpdateTx(ctx, tx, id, in); err != nil {
			return err
		}
		if err := s.portfolios.ReplaceImagesTx(ctx, tx, id, append(keep, added...)); err != nil {
			return err
		}
		stale = missing(current.Images, keep)
		if mainPath != nil && current.MainImage != "" {
			stale = append(stale, current.MainImage)
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, mainPath)
		s.discardAll(ctx, added)
		return model.Portfolio{}, translate(err, "update portfolio")
	}
	s.discardAll(ctx, stale)
	return s.GetPortfolio(ctx, id, true)
}

// KeepImages decides which current album entries survive an update:
// existing (in its order, restricted to current) or all of current, minus
// removed.
func KeepImages(current, existing, removed []string) []string {
	have := make(map[string]bool, len(current))
	for _, p := range current {
		have[p] = true
	}
	drop := make(map[string]bool, len(removed))
	for _, p := range removed {
		drop[p] = true
	}
	base := current
	if len(existing) > 0 {
		base = existing
	}
	keep := make([]string, 0, len(base))
	seen := map[string]bool{}
	for _, p := range base {
		if have[p] && !drop[p] && !seen[p] {
			keep = append(keep, p)
			seen[p] = true
		}
	}
	return keep
}

func missing(all, keep []string) []string {
	kept := make(map[string]bool, len(keep))
	for _, p := range keep {
		kept[p] = true
	}
	var out []string
	for _, p := range all {
		if !kept[p] {
			out = append(out, p)
		}
	}
	return out
}

// DeletePortfolio soft-deletes the portfolio and removes all its files.
func (s *CatalogService) DeletePortfolio(ctx context.Context, id uint64) error {
	var files []string
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.portfolios.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		files = current.Files()
		return s.portfolios.SoftDeleteTx(ctx, tx, id)
	})
	if err != nil {
		return translate(err, "delete portfolio")
	}
	s.discardAll(ctx, files)
	return nil
}

// saveOptional stores r when present. Storage rejections become field
// validation errors.
func (s *CatalogService) saveOptional(ctx context.Context, cat storage.Category, r io.Reader, field string) (*string, error) {
	if r == nil {
		return nil, nil
	}
	path, err := s.files.Save(ctx, cat, r)
	if err != nil {
		return nil, uploadError(err, field)
	}
	return &path, nil
}

func (s *CatalogService) saveAll(ctx context.Context, readers []io.Reader) ([]string, error) {
	paths := make([]string, 0, len(readers))
	for _, r := range readers {
		p, err := s.saveOptional(ctx, storage.PortfolioAlbums, r, "images")
		if err != nil {
			s.discardAll(ctx, paths)
			return nil, err
		}
		if p != nil {
			paths = append(paths, *p)
		}
	}
	return paths, nil
}

// uploadError maps storage failures to client-facing errors.
func uploadError(err error, field string) error {
	switch {
	case err == storage.ErrUnsupportedType:
		return apperror.Validation(field, "must be a JPEG, PNG, GIF or WEBP image")
	case err == storage.ErrTooLarge:
		return apperror.Validation(field, "file is too large")
	default:
		return apperror.Internal(err, "store upload")
	}
}

func (s *CatalogService) discard(ctx context.Context, path *string) {
	if path == nil {
		return
	}
	s.discardAll(ctx, []string{*path})
}

func (s *CatalogService) discardAll(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := s.files.DeleteAll(paths...); err != nil && s.log != nil {
		s.log.Warn(s.log.WithField(ctx, "paths", paths), "remove stored files failed", err)
	}
}
