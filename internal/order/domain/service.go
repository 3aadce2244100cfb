package domain

import (
	"context"

	"github.com/smallbiznis/pasarku/internal/events"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
)

type CreateOrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	MerchantID      string            `json:"merchant_id"`
	Items           []CreateOrderItem `json:"items"`
	DeliveryType    string            `json:"delivery_type"`
	PaymentMethod   string            `json:"payment_method"`
	ShippingCost    int64             `json:"shipping_cost"`
	DeliveryAddress *string           `json:"delivery_address,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

type TransitionRequest struct {
	OrderID      string `json:"-"`
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason,omitempty"`
	PodImageRef  string `json:"pod_image_ref,omitempty"`
	PodNotes     string `json:"pod_notes,omitempty"`
	// ExpectedVersion, when set, turns a stale read into ErrConcurrentModification
	// instead of an idempotent success.
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type DispatchRequest struct {
	OrderID         string  `json:"-"`
	Mode            string  `json:"mode"`
	CourierID       *string `json:"courier_id,omitempty"`
	ExpectedVersion *int64  `json:"expected_version,omitempty"`
}

type SubmitPaymentProofRequest struct {
	OrderID  string `json:"-"`
	ProofRef string `json:"proof_ref"`
}

type VerifyPaymentRequest struct {
	OrderID         string `json:"-"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type GatewayConfirmationRequest struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
}

type ListOrdersRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

type ListOrdersResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type ListEventsRequest struct {
	OrderID      string
	AfterVersion int64
	Limit        int
}

// Service is the only writer of order state. Every call reads the acting
// party from the context.
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)
	Transition(ctx context.Context, req TransitionRequest) (Order, error)
	Dispatch(ctx context.Context, req DispatchRequest) (Order, error)
	SubmitPaymentProof(ctx context.Context, req SubmitPaymentProofRequest) (Order, error)
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (Order, error)
	ConfirmGatewayPayment(ctx context.Context, req GatewayConfirmationRequest) (Order, error)
	ListEvents(ctx context.Context, req ListEventsRequest) ([]events.OrderEvent, error)

	// Sweeps. Both are safe to run concurrently and repeatedly.
	CancelExpiredConfirmations(ctx context.Context, limit int) (int, error)
	CompleteDelivered(ctx context.Context, limit int) (int, error)
}
