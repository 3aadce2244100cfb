package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/authorization"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/config"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/events"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	obslogger "github.com/smallbiznis/pasarku/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	"github.com/smallbiznis/pasarku/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	paymentdomain "github.com/smallbiznis/pasarku/internal/payment/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	dbpkg "github.com/smallbiznis/pasarku/pkg/db"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxReasonLength         = 500
	maxPODRefLength         = 1024
	maxIdempotencyKeyLength = 128
	maxEventPage            = 200

	expiredConfirmationReason = "confirmation window elapsed"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Cfg          config.Config
	Repo         orderdomain.Repository
	MerchantRepo merchantdomain.Repository
	PaymentGate  paymentdomain.Gate
	DispatchSvc  dispatchdomain.Service
	QuotaSvc     quotadomain.Service
	AuthzSvc     authorization.Service
	Outbox       *events.Outbox
	Dispatcher   *events.Dispatcher
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         orderdomain.Repository
	merchantRepo merchantdomain.Repository
	gate         paymentdomain.Gate
	dispatchSvc  dispatchdomain.Service
	quotaSvc     quotadomain.Service
	authzSvc     authorization.Service
	outbox       *events.Outbox
	dispatcher   *events.Dispatcher
	obsMetrics   *obsmetrics.Metrics
	tracer       trace.Tracer

	locks             *orderLocks
	autoCompleteAfter time.Duration
}

func NewService(p Params) orderdomain.Service {
	autoCompleteAfter := p.Cfg.Fulfillment.AutoCompleteAfter
	if autoCompleteAfter <= 0 {
		autoCompleteAfter = 24 * time.Hour
	}
	return &Service{
		db:                p.DB,
		log:               p.Log.Named("order.service"),
		genID:             p.GenID,
		clock:             p.Clock,
		repo:              p.Repo,
		merchantRepo:      p.MerchantRepo,
		gate:              p.PaymentGate,
		dispatchSvc:       p.DispatchSvc,
		quotaSvc:          p.QuotaSvc,
		authzSvc:          p.AuthzSvc,
		outbox:            p.Outbox,
		dispatcher:        p.Dispatcher,
		obsMetrics:        p.ObsMetrics,
		tracer:            otel.Tracer("pasarku/order"),
		locks:             newOrderLocks(),
		autoCompleteAfter: autoCompleteAfter,
	}
}

// change is what a mutation produced. A nil change means the order already
// satisfied the request.
type change struct {
	from   orderdomain.Status
	events []events.Event
}

type mutation func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error)

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (orderdomain.Order, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if a.Type != actor.TypeBuyer {
		return orderdomain.Order{}, orderdomain.ErrOrderAccessDenied
	}

	merchantID, err := parseID(req.MerchantID, orderdomain.ErrInvalidMerchant)
	if err != nil {
		return orderdomain.Order{}, err
	}
	method := paymentdomain.Method(strings.ToUpper(strings.TrimSpace(req.PaymentMethod)))
	if !method.Valid() {
		return orderdomain.Order{}, paymentdomain.ErrInvalidPaymentMethod
	}
	deliveryType := orderdomain.DeliveryType(strings.ToUpper(strings.TrimSpace(req.DeliveryType)))
	if !deliveryType.Valid() {
		return orderdomain.Order{}, orderdomain.ErrInvalidDeliveryType
	}
	if req.ShippingCost < 0 || (deliveryType == orderdomain.DeliveryPickup && req.ShippingCost != 0) {
		return orderdomain.Order{}, orderdomain.ErrInvalidShippingCost
	}
	address := trimmedPtr(req.DeliveryAddress)
	if deliveryType != orderdomain.DeliveryPickup && address == nil {
		return orderdomain.Order{}, orderdomain.ErrInvalidDeliveryAddress
	}
	idempotencyKey, err := normalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return orderdomain.Order{}, err
	}

	now := s.clock.Now()
	orderID := s.genID.Generate()
	items, subtotal, err := s.buildItems(orderID, req.Items, now)
	if err != nil {
		return orderdomain.Order{}, err
	}
	total, ok := addInt64(subtotal, req.ShippingCost)
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrAmountOverflow
	}

	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderCreate); err != nil {
		return orderdomain.Order{}, err
	}

	order := orderdomain.Order{
		ID:              orderID,
		BuyerID:         a.ID,
		MerchantID:      merchantID,
		PaymentMethod:   method,
		PaymentStatus:   paymentdomain.InitialStatus(method),
		DeliveryType:    deliveryType,
		Subtotal:        subtotal,
		ShippingCost:    req.ShippingCost,
		Total:           total,
		DeliveryAddress: address,
		IdempotencyKey:  idempotencyKey,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var (
		replayed  *orderdomain.Order
		published []events.OrderEvent
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != nil {
			existing, err := s.repo.FindByIdempotencyKey(ctx, tx, a.ID, *idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				replayed = existing
				return nil
			}
		}

		merchant, err := s.merchantRepo.FindByID(ctx, tx, merchantID)
		if err != nil {
			return err
		}
		if merchant == nil {
			return merchantdomain.ErrMerchantNotFound
		}

		window := merchant.ConfirmationWindow()
		order.Status = orderdomain.InitialStatus(method.RequiresVerification(), window > 0)
		if order.Status == orderdomain.StatusPendingConfirmation {
			deadline := now.Add(window)
			order.ConfirmationDeadline = &deadline
		}

		if err := s.repo.Insert(ctx, tx, &order); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		published, err = s.outbox.PublishTx(ctx, tx, s.newEvent(&order, events.TypeNewOrder, "", a, false, map[string]any{
			"total":          order.Total,
			"payment_method": string(order.PaymentMethod),
			"delivery_type":  string(order.DeliveryType),
			"item_count":     len(items),
		}))
		return err
	})
	if err != nil {
		if idempotencyKey != nil && dbpkg.IsDuplicateKeyErr(err) {
			return s.loadReplay(ctx, a.ID, *idempotencyKey, order)
		}
		return orderdomain.Order{}, err
	}
	if replayed != nil {
		if !sameCheckout(*replayed, order) {
			return orderdomain.Order{}, orderdomain.ErrIdempotencyKeyReused
		}
		return s.withItems(ctx, *replayed)
	}

	order.Items = items
	s.obsMetrics.RecordOrderCreated(ctx, string(order.PaymentMethod), string(order.DeliveryType))
	obslogger.WithOrder(ctx, s.log, order.ID.String(), order.MerchantID.String()).Info("order created",
		zap.String("status", string(order.Status)),
		zap.Int64("total", order.Total),
	)
	s.dispatcher.Dispatch(ctx, published)
	return order, nil
}

func (s *Service) loadReplay(ctx context.Context, buyerID snowflake.ID, key string, requested orderdomain.Order) (orderdomain.Order, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, buyerID, key)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if existing == nil {
		return orderdomain.Order{}, orderdomain.ErrConcurrentModification
	}
	if !sameCheckout(*existing, requested) {
		return orderdomain.Order{}, orderdomain.ErrIdempotencyKeyReused
	}
	return s.withItems(ctx, *existing)
}

// sameCheckout reports whether a replayed key describes the stored order.
func sameCheckout(stored, requested orderdomain.Order) bool {
	return stored.MerchantID == requested.MerchantID &&
		stored.Total == requested.Total &&
		stored.PaymentMethod == requested.PaymentMethod &&
		stored.DeliveryType == requested.DeliveryType
}

func (s *Service) buildItems(orderID snowflake.ID, reqItems []orderdomain.CreateOrderItem, now time.Time) ([]orderdomain.OrderItem, int64, error) {
	if len(reqItems) == 0 {
		return nil, 0, orderdomain.ErrInvalidItems
	}
	items := make([]orderdomain.OrderItem, 0, len(reqItems))
	var subtotal int64
	for _, item := range reqItems {
		productID, err := parseID(item.ProductID, orderdomain.ErrInvalidItems)
		if err != nil {
			return nil, 0, err
		}
		name := strings.TrimSpace(item.ProductName)
		if name == "" {
			return nil, 0, orderdomain.ErrInvalidItems
		}
		if item.Quantity <= 0 {
			return nil, 0, orderdomain.ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return nil, 0, orderdomain.ErrInvalidPrice
		}
		lineTotal, ok := mulInt64(item.UnitPrice, item.Quantity)
		if !ok {
			return nil, 0, orderdomain.ErrAmountOverflow
		}
		if subtotal, ok = addInt64(subtotal, lineTotal); !ok {
			return nil, 0, orderdomain.ErrAmountOverflow
		}
		items = append(items, orderdomain.OrderItem{
			ID:          s.genID.Generate(),
			OrderID:     orderID,
			ProductID:   productID,
			ProductName: name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    lineTotal,
			CreatedAt:   now,
		})
	}
	return items, subtotal, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (orderdomain.Order, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	id, err := parseID(orderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderView); err != nil {
		return orderdomain.Order{}, err
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if order == nil {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	if err := checkOwnership(a, order); err != nil {
		return orderdomain.Order{}, err
	}
	return s.withItems(ctx, *order)
}

func (s *Service) withItems(ctx context.Context, order orderdomain.Order) (orderdomain.Order, error) {
	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (s *Service) List(ctx context.Context, req orderdomain.ListOrdersRequest) (orderdomain.ListOrdersResponse, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.ListOrdersResponse{}, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderView); err != nil {
		return orderdomain.ListOrdersResponse{}, err
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return orderdomain.ListOrdersResponse{}, err
	}
	limit := req.Limit()
	filter := orderdomain.ListFilter{Limit: limit + 1}

	scope := a.ID
	switch a.Type {
	case actor.TypeMerchant:
		filter.MerchantID = &scope
	case actor.TypeBuyer:
		filter.BuyerID = &scope
	case actor.TypeCourier:
		filter.CourierID = &scope
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		for _, raw := range strings.Split(status, ",") {
			parsed := orderdomain.Status(strings.ToUpper(strings.TrimSpace(raw)))
			if !parsed.Valid() {
				return orderdomain.ListOrdersResponse{}, orderdomain.ErrInvalidTargetStatus
			}
			filter.Statuses = append(filter.Statuses, parsed)
		}
	}
	if cursor != nil {
		before := snowflake.ID(cursor.ID)
		filter.BeforeID = &before
	}

	orders, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return orderdomain.ListOrdersResponse{}, err
	}
	page, info, err := pagination.Page(orders, limit, func(o orderdomain.Order) int64 { return o.ID.Int64() })
	if err != nil {
		return orderdomain.ListOrdersResponse{}, err
	}
	return orderdomain.ListOrdersResponse{PageInfo: info, Orders: page}, nil
}

func (s *Service) Transition(ctx context.Context, req orderdomain.TransitionRequest) (orderdomain.Order, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	order, _, err := s.transition(ctx, a, req)
	return order, err
}

func (s *Service) transition(ctx context.Context, a actor.Actor, req orderdomain.TransitionRequest) (order orderdomain.Order, changed bool, err error) {
	ctx, span := s.startSpan(ctx, "order.transition", req.OrderID, attribute.String("order.target_status", req.TargetStatus))
	defer func() { endSpan(span, err) }()

	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, false, err
	}
	target := orderdomain.Status(strings.ToUpper(strings.TrimSpace(req.TargetStatus)))
	if !target.Valid() {
		return orderdomain.Order{}, false, orderdomain.ErrInvalidTargetStatus
	}
	if target == orderdomain.StatusSent {
		return orderdomain.Order{}, false, orderdomain.ErrDispatchRequired
	}
	action, ok := transitionAction(target)
	if !ok {
		return orderdomain.Order{}, false, orderdomain.ErrInvalidTransition
	}

	var reason *string
	switch target {
	case orderdomain.StatusCanceled:
		r, err := normalizeReason(req.Reason, true)
		if err != nil {
			return orderdomain.Order{}, false, err
		}
		reason = r
	case orderdomain.StatusRejectedByBuyer:
		r, err := normalizeReason(req.Reason, false)
		if err != nil {
			return orderdomain.Order{}, false, err
		}
		reason = r
	}
	podRef, err := normalizeOptional(req.PodImageRef, maxPODRefLength, orderdomain.ErrInvalidPODRef)
	if err != nil {
		return orderdomain.Order{}, false, err
	}
	podNotes, err := normalizeOptional(req.PodNotes, maxReasonLength, orderdomain.ErrInvalidReason)
	if err != nil {
		return orderdomain.Order{}, false, err
	}

	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, action); err != nil {
		return orderdomain.Order{}, false, err
	}

	return s.mutate(ctx, a, id, req.ExpectedVersion, func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error) {
		if order.Status == target {
			if !orderdomain.MayTarget(target, a.Type) {
				return nil, orderdomain.ErrOrderAccessDenied
			}
			return nil, nil
		}
		if order.Status == orderdomain.StatusPendingPayment && isForward(target) {
			if err := s.gate.CheckForward(order.PaymentState()); err != nil {
				return nil, err
			}
		}
		if err := orderdomain.CheckTransition(order.Status, target, a.Type); err != nil {
			return nil, err
		}

		from := order.Status
		switch target {
		case orderdomain.StatusProcessed:
			order.ConfirmedAt = &now
		case orderdomain.StatusDelivered:
			if err := checkDeliverer(a, order); err != nil {
				return nil, err
			}
			if order.DeliveryType != orderdomain.DeliveryPickup && podRef == nil {
				return nil, orderdomain.ErrInvalidPODRef
			}
			order.PodImageRef = podRef
			order.PodNotes = podNotes
			order.DeliveredAt = &now
		case orderdomain.StatusDone:
			if a.Type == actor.TypeSystem {
				if order.DeliveredAt == nil || now.Before(order.DeliveredAt.Add(s.autoCompleteAfter)) {
					return nil, orderdomain.ErrInvalidTransition
				}
			}
			order.CompletedAt = &now
		case orderdomain.StatusCanceled:
			if a.Type == actor.TypeSystem && !confirmationExpired(order, now) {
				return nil, orderdomain.ErrInvalidTransition
			}
			order.Notes = reason
			order.CanceledAt = &now
		case orderdomain.StatusRejectedByBuyer:
			if reason != nil {
				order.Notes = reason
			}
			order.CanceledAt = &now
		}
		order.Status = target

		payload := map[string]any{}
		if reason != nil {
			payload["reason"] = *reason
		}
		return &change{
			from:   from,
			events: []events.Event{s.newEvent(order, events.TypeStatusChanged, from, a, true, payload)},
		}, nil
	})
}

func (s *Service) Dispatch(ctx context.Context, req orderdomain.DispatchRequest) (result orderdomain.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.dispatch", req.OrderID, attribute.String("dispatch.mode", req.Mode))
	defer func() { endSpan(span, err) }()

	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, err
	}
	mode := dispatchdomain.Mode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if !mode.Valid() {
		return orderdomain.Order{}, dispatchdomain.ErrInvalidMode
	}
	var courierID *snowflake.ID
	if req.CourierID != nil && strings.TrimSpace(*req.CourierID) != "" {
		parsed, err := parseID(*req.CourierID, dispatchdomain.ErrInvalidCourier)
		if err != nil {
			return orderdomain.Order{}, err
		}
		courierID = &parsed
	}

	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderDispatch); err != nil {
		return orderdomain.Order{}, err
	}

	result, _, err = s.mutate(ctx, a, id, req.ExpectedVersion, func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error) {
		if order.Status == orderdomain.StatusSent {
			return nil, nil
		}
		if order.Status == orderdomain.StatusPendingPayment {
			if err := s.gate.CheckForward(order.PaymentState()); err != nil {
				return nil, err
			}
		}
		if err := orderdomain.CheckTransition(order.Status, orderdomain.StatusSent, a.Type); err != nil {
			return nil, err
		}

		merchant, err := s.merchantRepo.FindByID(ctx, tx, order.MerchantID)
		if err != nil {
			return nil, err
		}
		if merchant == nil {
			return nil, merchantdomain.ErrMerchantNotFound
		}

		assignment, err := s.dispatchSvc.ResolveTx(ctx, tx, dispatchdomain.ResolveRequest{
			Merchant:   *merchant,
			Mode:       mode,
			CourierID:  courierID,
			PickupOnly: order.DeliveryType == orderdomain.DeliveryPickup,
		})
		if err != nil {
			return nil, err
		}

		debit, err := s.quotaSvc.DebitTx(ctx, tx, quotadomain.DebitRequest{
			MerchantID: order.MerchantID,
			OrderID:    order.ID,
			OrderTotal: order.Total,
		})
		if err != nil {
			return nil, err
		}

		from := order.Status
		order.Status = orderdomain.StatusSent
		order.AssignedAt = &now
		switch {
		case order.DeliveryType == orderdomain.DeliveryPickup:
		case assignment.Mode == dispatchdomain.ModePool:
			order.DeliveryType = orderdomain.DeliveryPoolCourier
			order.AssignedCourierID = assignment.CourierID
		default:
			order.DeliveryType = orderdomain.DeliveryMerchantSelf
		}

		payload := map[string]any{
			"mode":            string(assignment.Mode),
			"delivery_type":   string(order.DeliveryType),
			"credits_used":    debit.Entry.CreditsUsed,
			"remaining_quota": debit.Entry.RemainingQuota,
		}
		if assignment.CourierID != nil {
			payload["courier_id"] = assignment.CourierID.String()
		}
		return &change{
			from: from,
			events: []events.Event{
				s.newEvent(order, events.TypeDispatchAssigned, from, a, true, payload),
				s.newEvent(order, events.TypeStatusChanged, from, a, true, nil),
			},
		}, nil
	})
	return result, err
}

func (s *Service) SubmitPaymentProof(ctx context.Context, req orderdomain.SubmitPaymentProofRequest) (orderdomain.Order, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, err
	}
	ref, err := paymentdomain.NormalizeProofRef(req.ProofRef)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderSubmitProof); err != nil {
		return orderdomain.Order{}, err
	}

	order, _, err := s.mutate(ctx, a, id, nil, func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error) {
		if order.Status != orderdomain.StatusPendingPayment {
			return nil, orderdomain.ErrInvalidTransition
		}
		ref, err := s.gate.CheckProofSubmission(order.PaymentState(), ref)
		if err != nil {
			return nil, err
		}
		if order.PaymentProofRef != nil && *order.PaymentProofRef == ref {
			return nil, nil
		}
		order.PaymentProofRef = &ref
		order.PaymentStatus = paymentdomain.StatusPendingProof

		return &change{
			from:   order.Status,
			events: []events.Event{s.newEvent(order, events.TypePaymentProofSubmitted, order.Status, a, false, nil)},
		}, nil
	})
	return order, err
}

func (s *Service) VerifyPayment(ctx context.Context, req orderdomain.VerifyPaymentRequest) (result orderdomain.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.verify_payment", req.OrderID)
	defer func() { endSpan(span, err) }()

	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderVerifyPayment); err != nil {
		return orderdomain.Order{}, err
	}

	result, _, err = s.mutate(ctx, a, id, req.ExpectedVersion, func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error) {
		if order.PaymentStatus == paymentdomain.StatusPaid && order.Status != orderdomain.StatusPendingPayment {
			return nil, nil
		}
		if order.Status != orderdomain.StatusPendingPayment {
			return nil, orderdomain.ErrInvalidTransition
		}
		if err := s.gate.CheckManualVerification(order.PaymentState()); err != nil {
			return nil, err
		}
		return s.markPaid(order, a, now, nil)
	})
	return result, err
}

func (s *Service) ConfirmGatewayPayment(ctx context.Context, req orderdomain.GatewayConfirmationRequest) (result orderdomain.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.confirm_gateway_payment", req.OrderID)
	defer func() { endSpan(span, err) }()

	a, err := s.actorFrom(ctx)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if a.Type != actor.TypeSystem {
		return orderdomain.Order{}, orderdomain.ErrOrderAccessDenied
	}
	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return orderdomain.Order{}, err
	}
	reference, err := normalizeOptional(req.Reference, paymentdomain.MaxProofRefLength, paymentdomain.ErrInvalidProofRef)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderConfirmGateway); err != nil {
		return orderdomain.Order{}, err
	}

	result, _, err = s.mutate(ctx, a, id, nil, func(tx *gorm.DB, order *orderdomain.Order, now time.Time) (*change, error) {
		if order.PaymentStatus == paymentdomain.StatusPaid && order.Status != orderdomain.StatusPendingPayment {
			return nil, nil
		}
		if order.Status != orderdomain.StatusPendingPayment {
			return nil, orderdomain.ErrInvalidTransition
		}
		if err := s.gate.CheckGatewayConfirmation(order.PaymentState()); err != nil {
			return nil, err
		}
		if reference != nil {
			order.PaymentProofRef = reference
		}
		return s.markPaid(order, a, now, reference)
	})
	return result, err
}

// markPaid applies payment verification: PAID and PROCESSED land in the same write.
func (s *Service) markPaid(order *orderdomain.Order, a actor.Actor, now time.Time, gatewayRef *string) (*change, error) {
	if err := orderdomain.CheckTransition(order.Status, orderdomain.StatusProcessed, a.Type); err != nil {
		return nil, err
	}
	from := order.Status
	order.PaymentStatus = paymentdomain.StatusPaid
	order.PaymentPaidAt = &now
	order.ConfirmedAt = &now
	order.Status = orderdomain.StatusProcessed

	payload := map[string]any{"payment_method": string(order.PaymentMethod)}
	if gatewayRef != nil {
		payload["gateway"] = true
	}
	return &change{
		from: from,
		events: []events.Event{
			s.newEvent(order, events.TypePaymentVerified, from, a, true, payload),
			s.newEvent(order, events.TypeStatusChanged, from, a, true, nil),
		},
	}, nil
}

func (s *Service) ListEvents(ctx context.Context, req orderdomain.ListEventsRequest) ([]events.OrderEvent, error) {
	a, err := s.actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.OrderID, orderdomain.ErrInvalidOrder)
	if err != nil {
		return nil, err
	}
	if err := s.authzSvc.Authorize(ctx, a, authorization.ObjectOrder, authorization.ActionOrderView); err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if err := checkOwnership(a, order); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	evts, err := s.outbox.ListByOrder(ctx, s.db, id, req.AfterVersion, limit)
	if err != nil {
		return nil, err
	}
	if a.Type == actor.TypeBuyer {
		visible := evts[:0]
		for _, evt := range evts {
			if evt.BuyerVisible {
				visible = append(visible, evt)
			}
		}
		evts = visible
	}
	return evts, nil
}

// CancelExpiredConfirmations cancels orders whose merchant confirmation
// window has elapsed.
func (s *Service) CancelExpiredConfirmations(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListConfirmationExpired(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, ids, orderdomain.StatusCanceled, expiredConfirmationReason)
}

// CompleteDelivered closes orders delivered longer ago than the auto-complete delay.
func (s *Service) CompleteDelivered(ctx context.Context, limit int) (int, error) {
	cutoff := s.clock.Now().Add(-s.autoCompleteAfter)
	ids, err := s.repo.ListDeliveredBefore(ctx, s.db, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, ids, orderdomain.StatusDone, "")
}

func (s *Service) sweep(ctx context.Context, ids []snowflake.ID, target orderdomain.Status, reason string) (int, error) {
	system := actor.System()
	ctx = actor.WithActor(ctx, system)

	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		_, changed, err := s.transition(ctx, system, orderdomain.TransitionRequest{
			OrderID:      id.String(),
			TargetStatus: string(target),
			Reason:       reason,
		})
		switch {
		case err == nil:
			if changed {
				processed++
			}
		case errors.Is(err, orderdomain.ErrInvalidTransition), errors.Is(err, orderdomain.ErrConcurrentModification):
			// Someone else moved the order first.
		default:
			return processed, err
		}
	}
	return processed, nil
}

// mutate runs fn against the locked order and persists the result with a
// version check. Events are written to the outbox in the same transaction and
// fanned out only after commit.
func (s *Service) mutate(ctx context.Context, a actor.Actor, id snowflake.ID, expectedVersion *int64, fn mutation) (orderdomain.Order, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	ctx = obscontext.WithOrder(ctx, id.String(), "")

	var (
		result    orderdomain.Order
		applied   *change
		published []events.OrderEvent
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if err := checkOwnership(a, order); err != nil {
			return err
		}
		if expectedVersion != nil && order.Version != *expectedVersion {
			return orderdomain.ErrConcurrentModification
		}

		current := order.Version
		now := s.clock.Now()
		applied, err = fn(tx, order, now)
		if err != nil {
			return err
		}
		if applied == nil {
			result = *order
			return nil
		}

		order.Version = current + 1
		order.UpdatedAt = now
		ok, err := s.repo.UpdateIfVersion(ctx, tx, order, current)
		if err != nil {
			return err
		}
		if !ok {
			return orderdomain.ErrConcurrentModification
		}

		for i := range applied.events {
			applied.events[i].Version = order.Version
		}
		published, err = s.outbox.PublishTx(ctx, tx, applied.events...)
		if err != nil {
			return err
		}
		result = *order
		return nil
	})
	if err != nil {
		if dbpkg.IsConflict(err) {
			return orderdomain.Order{}, false, orderdomain.ErrConcurrentModification
		}
		return orderdomain.Order{}, false, err
	}
	if applied == nil {
		return result, false, nil
	}

	s.obsMetrics.RecordOrderTransition(ctx, string(applied.from), string(result.Status), string(a.Type))
	obslogger.WithOrder(ctx, s.log, result.ID.String(), result.MerchantID.String()).Info("order transitioned",
		zap.String("from", string(applied.from)),
		zap.String("to", string(result.Status)),
		zap.String("actor", a.String()),
		zap.Int64("version", result.Version),
	)
	s.dispatcher.Dispatch(ctx, published)
	return result, true, nil
}

func (s *Service) newEvent(order *orderdomain.Order, typ events.Type, from orderdomain.Status, a actor.Actor, buyerVisible bool, payload map[string]any) events.Event {
	evt := events.Event{
		OrderID:      order.ID,
		MerchantID:   order.MerchantID,
		BuyerID:      order.BuyerID,
		CourierID:    order.AssignedCourierID,
		Type:         typ,
		FromStatus:   string(from),
		ToStatus:     string(order.Status),
		Version:      order.Version,
		ActorType:    string(a.Type),
		BuyerVisible: buyerVisible,
		Payload:      payload,
	}
	if a.Type != actor.TypeSystem {
		evt.ActorID = a.ID.String()
	}
	return evt
}

func (s *Service) actorFrom(ctx context.Context) (actor.Actor, error) {
	a, ok := actor.FromContext(ctx)
	if !ok {
		return actor.Actor{}, authorization.ErrInvalidActor
	}
	if err := a.Validate(); err != nil {
		return actor.Actor{}, authorization.ErrInvalidActor
	}
	return a, nil
}

func (s *Service) startSpan(ctx context.Context, name string, orderID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("order.id", strings.TrimSpace(orderID)))
	return s.tracer.Start(ctx, name, trace.WithAttributes(tracing.SafeAttributes(attrs...)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "order operation failed")
	}
	span.End()
}

func checkOwnership(a actor.Actor, order *orderdomain.Order) error {
	switch a.Type {
	case actor.TypeAdmin, actor.TypeSystem:
		return nil
	case actor.TypeBuyer:
		if order.BuyerID == a.ID {
			return nil
		}
	case actor.TypeMerchant:
		if order.MerchantID == a.ID {
			return nil
		}
	case actor.TypeCourier:
		if order.AssignedCourierID != nil && *order.AssignedCourierID == a.ID {
			return nil
		}
	}
	return orderdomain.ErrOrderAccessDenied
}

// checkDeliverer limits DELIVERED to whoever is carrying the order.
func checkDeliverer(a actor.Actor, order *orderdomain.Order) error {
	if a.Type == actor.TypeAdmin {
		return nil
	}
	if order.DeliveryType == orderdomain.DeliveryPoolCourier {
		if a.Type == actor.TypeCourier {
			return nil
		}
		return orderdomain.ErrOrderAccessDenied
	}
	if a.Type == actor.TypeMerchant {
		return nil
	}
	return orderdomain.ErrOrderAccessDenied
}

func confirmationExpired(order *orderdomain.Order, now time.Time) bool {
	return order.Status == orderdomain.StatusPendingConfirmation &&
		order.ConfirmationDeadline != nil &&
		!now.Before(*order.ConfirmationDeadline)
}

func isForward(target orderdomain.Status) bool {
	return target != orderdomain.StatusCanceled && target != orderdomain.StatusRejectedByBuyer
}

func transitionAction(target orderdomain.Status) (string, bool) {
	switch target {
	case orderdomain.StatusProcessed:
		return authorization.ActionOrderConfirm, true
	case orderdomain.StatusDelivered:
		return authorization.ActionOrderDeliver, true
	case orderdomain.StatusDone:
		return authorization.ActionOrderComplete, true
	case orderdomain.StatusCanceled:
		return authorization.ActionOrderCancel, true
	case orderdomain.StatusRejectedByBuyer:
		return authorization.ActionOrderReject, true
	default:
		return "", false
	}
}

func normalizeReason(value string, required bool) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return nil, orderdomain.ErrInvalidReason
		}
		return nil, nil
	}
	if utf8.RuneCountInString(value) > maxReasonLength {
		return nil, orderdomain.ErrInvalidReason
	}
	return &value, nil
}

func normalizeOptional(value string, maxLen int, invalidErr error) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(value) > maxLen {
		return nil, invalidErr
	}
	return &value, nil
}

func normalizeIdempotencyKey(value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if len(value) > maxIdempotencyKeyLength {
		return nil, orderdomain.ErrInvalidIdempotencyKey
	}
	return &value, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func addInt64(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}
