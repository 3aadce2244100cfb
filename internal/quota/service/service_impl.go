package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/cache"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/config"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	obslogger "github.com/smallbiznis/pasarku/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        quotadomain.Repository
	Cfg         config.Config
	QuotaConfig *config.QuotaConfigHolder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        quotadomain.Repository
	quotaConfig *config.QuotaConfigHolder
	obsMetrics  *obsmetrics.Metrics

	tiers        cache.Cache[snowflake.ID, quotadomain.TierTable]
	tierCacheTTL time.Duration
}

func NewService(p Params) quotadomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("quota.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		quotaConfig:  p.QuotaConfig,
		obsMetrics:   p.ObsMetrics,
		tiers:        cache.NewTTLCache[snowflake.ID, quotadomain.TierTable](),
		tierCacheTTL: p.Cfg.Fulfillment.QuotaTierCacheTTL,
	}
}

// DebitTx appends a ledger entry and increments used quota for the order. A
// repeated call for the same order returns the original entry.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, req quotadomain.DebitRequest) (quotadomain.DebitResult, error) {
	if req.MerchantID == 0 {
		return quotadomain.DebitResult{}, quotadomain.ErrInvalidMerchant
	}
	if req.OrderID == 0 {
		return quotadomain.DebitResult{}, quotadomain.ErrInvalidOrder
	}
	if req.OrderTotal < 0 {
		return quotadomain.DebitResult{}, quotadomain.ErrInvalidAmount
	}

	credits, err := s.creditsFor(ctx, tx, req.MerchantID, req.OrderTotal)
	if err != nil {
		return quotadomain.DebitResult{}, err
	}

	now := s.clock.Now()
	subscription, err := s.repo.FindUsableSubscriptionForUpdate(ctx, tx, req.MerchantID, now)
	if err != nil {
		return quotadomain.DebitResult{}, err
	}
	if subscription == nil {
		s.obsMetrics.RecordQuotaRejected(ctx, "no_active_subscription")
		return quotadomain.DebitResult{}, fmt.Errorf("%w: no active subscription", quotadomain.ErrQuotaExhausted)
	}

	existing, err := s.repo.FindEntryByOrder(ctx, tx, subscription.ID, req.OrderID)
	if err != nil {
		return quotadomain.DebitResult{}, err
	}
	if existing != nil {
		return quotadomain.DebitResult{Entry: *existing, Replayed: true}, nil
	}
	if subscription.Remaining() <= 0 {
		s.obsMetrics.RecordQuotaRejected(ctx, "quota_used_up")
		return quotadomain.DebitResult{}, quotadomain.ErrQuotaExhausted
	}

	remaining := subscription.Remaining() - credits
	if remaining < 0 {
		s.obsMetrics.RecordQuotaRejected(ctx, "insufficient_credits")
		return quotadomain.DebitResult{}, quotadomain.ErrQuotaExhausted
	}

	orderID := req.OrderID
	entry := quotadomain.QuotaLedgerEntry{
		ID:             s.genID.Generate(),
		MerchantID:     req.MerchantID,
		SubscriptionID: subscription.ID,
		OrderID:        &orderID,
		CreditsUsed:    credits,
		OrderTotal:     req.OrderTotal,
		RemainingQuota: remaining,
		Reason:         quotadomain.ReasonOrderDispatch,
		CreatedAt:      now,
	}
	inserted, err := s.repo.InsertEntry(ctx, tx, &entry)
	if err != nil {
		return quotadomain.DebitResult{}, err
	}
	if !inserted {
		replayed, err := s.repo.FindEntryByOrder(ctx, tx, subscription.ID, req.OrderID)
		if err != nil {
			return quotadomain.DebitResult{}, err
		}
		if replayed == nil {
			return quotadomain.DebitResult{}, errors.New("quota ledger conflict without entry")
		}
		return quotadomain.DebitResult{Entry: *replayed, Replayed: true}, nil
	}

	ok, err := s.repo.IncrementUsed(ctx, tx, subscription.ID, credits, now)
	if err != nil {
		return quotadomain.DebitResult{}, err
	}
	if !ok {
		s.obsMetrics.RecordQuotaRejected(ctx, "insufficient_credits")
		return quotadomain.DebitResult{}, quotadomain.ErrQuotaExhausted
	}

	s.obsMetrics.RecordQuotaDebit(ctx, quotadomain.ReasonOrderDispatch, credits)
	return quotadomain.DebitResult{Entry: entry}, nil
}

func (s *Service) CreditsFor(ctx context.Context, merchantID snowflake.ID, total int64) (int64, error) {
	return s.creditsFor(ctx, s.db, merchantID, total)
}

func (s *Service) creditsFor(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, total int64) (int64, error) {
	table, err := s.tierTable(ctx, db, merchantID)
	if err != nil {
		return 0, err
	}
	return table.Credits(total)
}

// tierTable resolves merchant tiers, falling back to the configured defaults.
func (s *Service) tierTable(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (quotadomain.TierTable, error) {
	if table, ok := s.tiers.Get(merchantID); ok {
		return table, nil
	}

	rows, err := s.repo.ListTiers(ctx, db, merchantID)
	if err != nil {
		return quotadomain.TierTable{}, err
	}

	var tiers []quotadomain.Tier
	if len(rows) > 0 {
		tiers = make([]quotadomain.Tier, 0, len(rows))
		for _, row := range rows {
			tiers = append(tiers, quotadomain.Tier{MinAmount: row.MinAmount, MaxAmount: row.MaxAmount, Credits: row.Credits})
		}
		table, err := quotadomain.NewTierTable(tiers)
		if err == nil {
			s.tiers.Set(merchantID, table, s.tierCacheTTL)
			return table, nil
		}
		s.merchantLog(ctx, merchantID).Warn("merchant quota tiers invalid, using defaults", zap.Error(err))
	}

	// Defaults are not cached so config reloads apply immediately.
	return s.defaultTierTable()
}

func (s *Service) defaultTierTable() (quotadomain.TierTable, error) {
	defaults := config.DefaultQuotaConfig().DefaultTiers
	if s.quotaConfig != nil {
		defaults = s.quotaConfig.Get().DefaultTiers
	}
	tiers := make([]quotadomain.Tier, 0, len(defaults))
	for _, tier := range defaults {
		tiers = append(tiers, quotadomain.Tier{MinAmount: tier.MinAmount, Credits: tier.Credits})
	}
	return quotadomain.NewTierTable(tiers)
}

// GetQuotaInfo is a read-only balance query; a merchant without a usable
// package reports Available=false rather than an error.
func (s *Service) GetQuotaInfo(ctx context.Context, merchantID string) (quotadomain.QuotaInfo, error) {
	id, err := parseID(merchantID, quotadomain.ErrInvalidMerchant)
	if err != nil {
		return quotadomain.QuotaInfo{}, err
	}

	now := s.clock.Now()
	subscription, err := s.repo.FindUsableSubscription(ctx, s.db, id, now)
	if err != nil {
		return quotadomain.QuotaInfo{}, err
	}
	if subscription == nil {
		subscription, err = s.repo.FindLatestPaidSubscription(ctx, s.db, id)
		if err != nil {
			return quotadomain.QuotaInfo{}, err
		}
	}

	info := quotadomain.QuotaInfo{MerchantID: id.String()}
	if subscription == nil {
		return info, nil
	}

	expiresAt := subscription.ExpiredAt
	info.PackageName = subscription.PackageName
	info.TransactionQuota = subscription.TransactionQuota
	info.UsedQuota = subscription.UsedQuota
	info.RemainingQuota = subscription.Remaining()
	info.ExpiresAt = &expiresAt
	info.Available = subscription.UsableAt(now) && subscription.Remaining() > 0
	return info, nil
}

func (s *Service) ListEntries(ctx context.Context, req quotadomain.ListEntriesRequest) (quotadomain.ListEntriesResponse, error) {
	merchantID, err := parseID(req.MerchantID, quotadomain.ErrInvalidMerchant)
	if err != nil {
		return quotadomain.ListEntriesResponse{}, err
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return quotadomain.ListEntriesResponse{}, err
	}

	limit := req.Limit()
	filter := quotadomain.EntryFilter{MerchantID: merchantID, Limit: limit + 1}
	if cursor != nil {
		before := snowflake.ID(cursor.ID)
		filter.BeforeID = &before
	}

	entries, err := s.repo.ListEntries(ctx, s.db, filter)
	if err != nil {
		return quotadomain.ListEntriesResponse{}, err
	}
	page, info, err := pagination.Page(entries, limit, func(e quotadomain.QuotaLedgerEntry) int64 { return e.ID.Int64() })
	if err != nil {
		return quotadomain.ListEntriesResponse{}, err
	}
	return quotadomain.ListEntriesResponse{PageInfo: info, Entries: page}, nil
}

// Adjust records a manual debit that is not tied to an order.
func (s *Service) Adjust(ctx context.Context, req quotadomain.AdjustRequest) (quotadomain.QuotaLedgerEntry, error) {
	merchantID, err := parseID(req.MerchantID, quotadomain.ErrInvalidMerchant)
	if err != nil {
		return quotadomain.QuotaLedgerEntry{}, err
	}
	if req.Credits <= 0 {
		return quotadomain.QuotaLedgerEntry{}, quotadomain.ErrInvalidCredits
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return quotadomain.QuotaLedgerEntry{}, quotadomain.ErrInvalidNote
	}

	var entry quotadomain.QuotaLedgerEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		subscription, err := s.repo.FindUsableSubscriptionForUpdate(ctx, tx, merchantID, now)
		if err != nil {
			return err
		}
		if subscription == nil {
			return quotadomain.ErrSubscriptionNotFound
		}
		if subscription.Remaining() <= 0 {
			return quotadomain.ErrQuotaExhausted
		}
		remaining := subscription.Remaining() - req.Credits
		if remaining < 0 {
			return quotadomain.ErrQuotaExhausted
		}

		entry = quotadomain.QuotaLedgerEntry{
			ID:             s.genID.Generate(),
			MerchantID:     merchantID,
			SubscriptionID: subscription.ID,
			CreditsUsed:    req.Credits,
			RemainingQuota: remaining,
			Reason:         quotadomain.ReasonAdjustment,
			Note:           &note,
			CreatedAt:      now,
		}
		if _, err := s.repo.InsertEntry(ctx, tx, &entry); err != nil {
			return err
		}
		ok, err := s.repo.IncrementUsed(ctx, tx, subscription.ID, req.Credits, now)
		if err != nil {
			return err
		}
		if !ok {
			return quotadomain.ErrQuotaExhausted
		}
		return nil
	})
	if err != nil {
		return quotadomain.QuotaLedgerEntry{}, err
	}

	s.obsMetrics.RecordQuotaDebit(ctx, quotadomain.ReasonAdjustment, req.Credits)
	s.merchantLog(ctx, merchantID).Info("quota adjusted",
		zap.Int64("credits", req.Credits),
		zap.String("entry_id", entry.ID.String()),
	)
	return entry, nil
}

func (s *Service) merchantLog(ctx context.Context, merchantID snowflake.ID) *zap.Logger {
	return obslogger.WithContext(obscontext.WithMerchantID(ctx, merchantID.String()), s.log)
}

func (s *Service) ExpireSubscriptions(ctx context.Context, limit int) (int64, error) {
	return s.repo.ExpireDue(ctx, s.db, s.clock.Now(), limit)
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
