package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/mathutil"
	"github.com/tahopetis/crate/pkg/pagination"
	"github.com/tahopetis/crate/pkg/validate"
)

const (
	defaultListLimit = 50
	recalcBatchSize  = 200
	dateLayout       = "2006-01-02"
)

// Service records asset valuations and books their yearly amortization.
type Service struct {
	store    Store
	recorder audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a new valuation service
func NewService(store Store, recorder audit.Recorder, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		log:      log.With(logger.Scope("valuation")),
		now:      time.Now,
	}
}

// Create records a new valuation of a live asset and immediately books the
// years already elapsed since the purchase date.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor audit.Actor) (*Record, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	var salvage float64
	if req.SalvageValue != nil {
		salvage = mathutil.RoundCents(*req.SalvageValue)
	}
	initial := mathutil.RoundCents(req.InitialValue)
	if salvage >= initial {
		return nil, apperror.NewValidation("salvage_value must be less than initial_value")
	}

	now := s.now().UTC()
	purchase := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if req.PurchaseDate != "" {
		d, err := time.Parse(dateLayout, req.PurchaseDate)
		if err != nil {
			return nil, apperror.NewValidation("purchase_date must be a date formatted as 2006-01-02")
		}
		purchase = d
	}
	if purchase.After(now) {
		return nil, apperror.NewValidation("purchase_date cannot be in the future")
	}

	name, err := s.store.AssetName(ctx, req.CIAssetID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                 uuid.New(),
		CIAssetID:          req.CIAssetID,
		InitialValue:       initial,
		CurrentValue:       initial,
		SalvageValue:       salvage,
		UsefulLifeYears:    req.UsefulLifeYears,
		DepreciationMethod: req.DepreciationMethod,
		PurchaseDate:       purchase,
		CreatedBy:          actor.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
		AssetName:          name,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	var booker *uuid.UUID
	if actor.UserID != uuid.Nil {
		booker = &actor.UserID
	}
	if _, err := s.amortize(ctx, rec, now, booker); err != nil {
		s.log.Warn("initial amortization failed",
			slog.String("valuation_id", rec.ID.String()),
			logger.Error(err))
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: rec.ID, Action: audit.ActionCreate, New: rec, Actor: actor,
	})
	return rec, nil
}

// amortize books every elapsed year of rec not yet persisted and moves
// rec.CurrentValue to the book value as of asOf.
func (s *Service) amortize(ctx context.Context, rec *Record, asOf time.Time, actor *uuid.UUID) (int, error) {
	elapsed := YearsElapsed(*rec, asOf)
	value := ValueAt(*rec, asOf)
	if elapsed == 0 && value == rec.CurrentValue {
		return 0, nil
	}

	now := s.now().UTC()
	entries := make([]Entry, 0, elapsed)
	for _, p := range Plan(*rec)[:elapsed] {
		entries = append(entries, Entry{
			ID:                 uuid.New(),
			ValuationID:        rec.ID,
			Year:               p.Year,
			OpeningValue:       p.OpeningValue,
			DepreciationAmount: p.DepreciationAmount,
			ClosingValue:       p.ClosingValue,
			CreatedBy:          actor,
			CreatedAt:          now,
		})
	}
	n, err := s.store.ApplyAmortization(ctx, rec.ID, entries, value, actor)
	if err != nil {
		return 0, err
	}
	rec.CurrentValue = value
	return n, nil
}

// GetSchedule returns the plan of the asset's latest valuation together with
// its persisted amortization history.
func (s *Service) GetSchedule(ctx context.Context, assetID uuid.UUID) (*Schedule, error) {
	if _, err := s.store.AssetName(ctx, assetID); err != nil {
		return nil, err
	}
	rec, err := s.store.LatestForAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.Entries(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	elapsed := YearsElapsed(*rec, now)
	periods := Plan(*rec)
	for i := range periods {
		periods[i].Elapsed = periods[i].Year <= elapsed
	}
	return &Schedule{
		Valuation:    rec,
		YearsElapsed: elapsed,
		Periods:      periods,
		History:      history,
	}, nil
}

// List returns valuations newest first.
func (s *Service) List(ctx context.Context, page pagination.Page) (pagination.Result[Record], error) {
	recs, total, err := s.store.List(ctx, page)
	if err != nil {
		return pagination.Result[Record]{}, err
	}
	return pagination.NewResult(recs, total, page), nil
}

// Recalculate books the elapsed years of every valuation as of asOf. A
// failing record is logged and skipped; running it twice for the same day
// changes nothing.
func (s *Service) Recalculate(ctx context.Context, asOf time.Time) (RecalcResult, error) {
	var res RecalcResult
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := s.store.ListAfter(ctx, after, recalcBatchSize)
		if err != nil {
			return res, err
		}
		for i := range batch {
			rec := &batch[i]
			res.Valuations++
			n, err := s.amortize(ctx, rec, asOf, nil)
			if err != nil {
				res.Failed++
				s.log.Warn("amortization failed",
					slog.String("valuation_id", rec.ID.String()),
					logger.Error(err))
				continue
			}
			res.EntriesCreated += n
		}
		if len(batch) < recalcBatchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	s.log.Info("amortization recalculated",
		slog.Int("valuations", res.Valuations),
		slog.Int("entries_created", res.EntriesCreated),
		slog.Int("failed", res.Failed))
	return res, nil
}

// Count returns the number of valuations of live assets.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
