package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/config"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	obslogger "github.com/smallbiznis/pasarku/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Cfg          config.Config
	Repo         dispatchdomain.Repository
	MerchantRepo merchantdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         dispatchdomain.Repository
	merchantRepo merchantdomain.Repository
	maxActive    int
}

func NewService(p Params) dispatchdomain.Service {
	maxActive := p.Cfg.Fulfillment.CourierMaxActiveOrders
	if maxActive < 1 {
		maxActive = 1
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("dispatch.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		merchantRepo: p.MerchantRepo,
		maxActive:    maxActive,
	}
}

// ListCandidates returns the couriers a merchant may pick right now. The list
// is advisory; the pick is re-checked when the order is dispatched.
func (s *Service) ListCandidates(ctx context.Context, merchantID string) ([]dispatchdomain.Courier, error) {
	id, err := parseID(merchantID, merchantdomain.ErrInvalidMerchant)
	if err != nil {
		return nil, err
	}
	merchant, err := s.merchantRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, merchantdomain.ErrMerchantNotFound
	}

	couriers, err := s.candidates(ctx, s.db, *merchant)
	if err != nil {
		return nil, err
	}
	if len(couriers) == 0 {
		return nil, dispatchdomain.ErrNoCouriersAvailable
	}
	return couriers, nil
}

func (s *Service) candidates(ctx context.Context, db *gorm.DB, merchant merchantdomain.Merchant) ([]dispatchdomain.Courier, error) {
	return s.repo.ListCandidates(ctx, db, dispatchdomain.CandidateFilter{
		VillageID: merchant.Village(),
		MaxActive: s.maxActive,
	})
}

func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, req dispatchdomain.ResolveRequest) (dispatchdomain.Assignment, error) {
	if !req.Mode.Valid() {
		return dispatchdomain.Assignment{}, dispatchdomain.ErrInvalidMode
	}

	if req.Mode == dispatchdomain.ModeSelf {
		return dispatchdomain.Assignment{Mode: dispatchdomain.ModeSelf}, nil
	}
	if req.PickupOnly {
		return dispatchdomain.Assignment{}, dispatchdomain.ErrModeNotAllowed
	}

	if req.CourierID == nil || *req.CourierID == 0 {
		couriers, err := s.candidates(ctx, tx, req.Merchant)
		if err != nil {
			return dispatchdomain.Assignment{}, err
		}
		if len(couriers) == 0 {
			return dispatchdomain.Assignment{}, dispatchdomain.ErrNoCouriersAvailable
		}
		return dispatchdomain.Assignment{}, dispatchdomain.ErrCourierRequired
	}

	courier, err := s.repo.FindByIDForUpdate(ctx, tx, *req.CourierID)
	if err != nil {
		return dispatchdomain.Assignment{}, err
	}
	if courier == nil {
		return dispatchdomain.Assignment{}, dispatchdomain.ErrCourierUnavailable
	}
	active, err := s.repo.CountActiveAssignments(ctx, tx, courier.ID)
	if err != nil {
		return dispatchdomain.Assignment{}, err
	}
	if !courier.Eligible(req.Merchant.Village(), active, s.maxActive) {
		obslogger.WithContext(obscontext.WithMerchantID(ctx, req.Merchant.ID.String()), s.log).Info("courier failed dispatch re-check",
			zap.String("courier_id", courier.ID.String()),
			zap.Int64("active_orders", active),
		)
		return dispatchdomain.Assignment{}, dispatchdomain.ErrCourierUnavailable
	}

	courierID := courier.ID
	return dispatchdomain.Assignment{Mode: dispatchdomain.ModePool, CourierID: &courierID}, nil
}

func (s *Service) GetCourier(ctx context.Context, courierID string) (dispatchdomain.Courier, error) {
	id, err := parseID(courierID, dispatchdomain.ErrInvalidCourier)
	if err != nil {
		return dispatchdomain.Courier{}, err
	}
	courier, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return dispatchdomain.Courier{}, err
	}
	if courier == nil {
		return dispatchdomain.Courier{}, dispatchdomain.ErrCourierNotFound
	}
	return *courier, nil
}

func (s *Service) SetAvailability(ctx context.Context, courierID string, available bool) (dispatchdomain.Courier, error) {
	id, err := parseID(courierID, dispatchdomain.ErrInvalidCourier)
	if err != nil {
		return dispatchdomain.Courier{}, err
	}

	var courier *dispatchdomain.Courier
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return dispatchdomain.ErrCourierNotFound
		}
		if found.IsAvailable == available {
			courier = found
			return nil
		}
		now := s.clock.Now()
		if _, err := s.repo.SetAvailability(ctx, tx, id, available, now); err != nil {
			return err
		}
		found.IsAvailable = available
		found.UpdatedAt = now
		courier = found
		return nil
	})
	if err != nil {
		return dispatchdomain.Courier{}, err
	}

	s.log.Info("courier availability changed",
		zap.String("courier_id", id.String()),
		zap.Bool("available", available),
	)
	return *courier, nil
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
