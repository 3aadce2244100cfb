package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
	"gorm.io/gorm"
)

type DebitRequest struct {
	MerchantID snowflake.ID
	OrderID    snowflake.ID
	OrderTotal int64
}

type DebitResult struct {
	Entry    QuotaLedgerEntry
	Replayed bool
}

// QuotaInfo is the read model for dashboards and catalog visibility.
type QuotaInfo struct {
	MerchantID       string     `json:"merchant_id"`
	PackageName      string     `json:"package_name"`
	TransactionQuota int64      `json:"transaction_quota"`
	UsedQuota        int64      `json:"used_quota"`
	RemainingQuota   int64      `json:"remaining_quota"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Available        bool       `json:"available"`
}

type ListEntriesRequest struct {
	MerchantID string
	pagination.Pagination
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []QuotaLedgerEntry `json:"entries"`
}

type AdjustRequest struct {
	MerchantID string `json:"-"`
	Credits    int64  `json:"credits"`
	Note       string `json:"note"`
}

type Service interface {
	// DebitTx consumes quota for a dispatched order inside the caller's transaction.
	DebitTx(ctx context.Context, tx *gorm.DB, req DebitRequest) (DebitResult, error)
	CreditsFor(ctx context.Context, merchantID snowflake.ID, total int64) (int64, error)
	GetQuotaInfo(ctx context.Context, merchantID string) (QuotaInfo, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	Adjust(ctx context.Context, req AdjustRequest) (QuotaLedgerEntry, error)
	ExpireSubscriptions(ctx context.Context, limit int) (int64, error)
}
