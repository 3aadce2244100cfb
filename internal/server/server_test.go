package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/authorization"
	"github.com/smallbiznis/pasarku/internal/config"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/events"
	"github.com/smallbiznis/pasarku/internal/liveevents"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"github.com/smallbiznis/pasarku/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testBuyerID    = snowflake.ID(1001)
	testMerchantID = snowflake.ID(2001)
	otherMerchant  = snowflake.ID(2002)
	testCourierID  = snowflake.ID(3001)
	otherCourier   = snowflake.ID(3002)
	testAdminID    = snowflake.ID(4001)
	testOrderID    = snowflake.ID(9001)
)

type fakeOrderService struct {
	mu       sync.Mutex
	actors   []actor.Actor
	lastCall string

	created    orderdomain.CreateOrderRequest
	transition orderdomain.TransitionRequest
	dispatch   orderdomain.DispatchRequest
	gateway    orderdomain.GatewayConfirmationRequest
	listReq    orderdomain.ListOrdersRequest
	eventsReq  orderdomain.ListEventsRequest

	order  orderdomain.Order
	err    error
	getErr error
}

func (f *fakeOrderService) record(ctx context.Context, call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, _ := actor.FromContext(ctx)
	f.actors = append(f.actors, a)
	f.lastCall = call
}

func (f *fakeOrderService) lastActor() actor.Actor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actors) == 0 {
		return actor.Actor{}
	}
	return f.actors[len(f.actors)-1]
}

func (f *fakeOrderService) called() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCall
}

func (f *fakeOrderService) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (orderdomain.Order, error) {
	f.record(ctx, "create")
	f.created = req
	return f.order, f.err
}

func (f *fakeOrderService) Get(ctx context.Context, orderID string) (orderdomain.Order, error) {
	f.record(ctx, "get")
	if f.getErr != nil {
		return orderdomain.Order{}, f.getErr
	}
	return f.order, nil
}

func (f *fakeOrderService) List(ctx context.Context, req orderdomain.ListOrdersRequest) (orderdomain.ListOrdersResponse, error) {
	f.record(ctx, "list")
	f.listReq = req
	return orderdomain.ListOrdersResponse{Orders: []orderdomain.Order{f.order}}, f.err
}

func (f *fakeOrderService) Transition(ctx context.Context, req orderdomain.TransitionRequest) (orderdomain.Order, error) {
	f.record(ctx, "transition")
	f.transition = req
	return f.order, f.err
}

func (f *fakeOrderService) Dispatch(ctx context.Context, req orderdomain.DispatchRequest) (orderdomain.Order, error) {
	f.record(ctx, "dispatch")
	f.dispatch = req
	return f.order, f.err
}

func (f *fakeOrderService) SubmitPaymentProof(ctx context.Context, req orderdomain.SubmitPaymentProofRequest) (orderdomain.Order, error) {
	f.record(ctx, "submit_proof")
	return f.order, f.err
}

func (f *fakeOrderService) VerifyPayment(ctx context.Context, req orderdomain.VerifyPaymentRequest) (orderdomain.Order, error) {
	f.record(ctx, "verify_payment")
	return f.order, f.err
}

func (f *fakeOrderService) ConfirmGatewayPayment(ctx context.Context, req orderdomain.GatewayConfirmationRequest) (orderdomain.Order, error) {
	f.record(ctx, "confirm_gateway")
	f.gateway = req
	return f.order, f.err
}

func (f *fakeOrderService) ListEvents(ctx context.Context, req orderdomain.ListEventsRequest) ([]events.OrderEvent, error) {
	f.record(ctx, "list_events")
	f.eventsReq = req
	return []events.OrderEvent{}, f.err
}

func (f *fakeOrderService) CancelExpiredConfirmations(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func (f *fakeOrderService) CompleteDelivered(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

type fakeQuotaService struct {
	info     quotadomain.QuotaInfo
	adjusted *quotadomain.AdjustRequest
	err      error
}

func (f *fakeQuotaService) DebitTx(ctx context.Context, tx *gorm.DB, req quotadomain.DebitRequest) (quotadomain.DebitResult, error) {
	return quotadomain.DebitResult{}, nil
}

func (f *fakeQuotaService) CreditsFor(ctx context.Context, merchantID snowflake.ID, total int64) (int64, error) {
	return 1, nil
}

func (f *fakeQuotaService) GetQuotaInfo(ctx context.Context, merchantID string) (quotadomain.QuotaInfo, error) {
	info := f.info
	info.MerchantID = merchantID
	return info, f.err
}

func (f *fakeQuotaService) ListEntries(ctx context.Context, req quotadomain.ListEntriesRequest) (quotadomain.ListEntriesResponse, error) {
	return quotadomain.ListEntriesResponse{Entries: []quotadomain.QuotaLedgerEntry{}}, f.err
}

func (f *fakeQuotaService) Adjust(ctx context.Context, req quotadomain.AdjustRequest) (quotadomain.QuotaLedgerEntry, error) {
	f.adjusted = &req
	return quotadomain.QuotaLedgerEntry{CreditsUsed: req.Credits}, f.err
}

func (f *fakeQuotaService) ExpireSubscriptions(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

type fakeDispatchService struct {
	candidates   []dispatchdomain.Courier
	candidateErr error
	available    *bool
}

func (f *fakeDispatchService) ListCandidates(ctx context.Context, merchantID string) ([]dispatchdomain.Courier, error) {
	return f.candidates, f.candidateErr
}

func (f *fakeDispatchService) ResolveTx(ctx context.Context, tx *gorm.DB, req dispatchdomain.ResolveRequest) (dispatchdomain.Assignment, error) {
	return dispatchdomain.Assignment{}, nil
}

func (f *fakeDispatchService) GetCourier(ctx context.Context, courierID string) (dispatchdomain.Courier, error) {
	id, _ := snowflake.ParseString(courierID)
	return dispatchdomain.Courier{ID: id, Name: "Andi"}, nil
}

func (f *fakeDispatchService) SetAvailability(ctx context.Context, courierID string, available bool) (dispatchdomain.Courier, error) {
	f.available = &available
	id, _ := snowflake.ParseString(courierID)
	return dispatchdomain.Courier{ID: id, IsAvailable: available}, nil
}

type testServer struct {
	srv      *Server
	orders   *fakeOrderService
	quota    *fakeQuotaService
	dispatch *fakeDispatchService
	hub      *liveevents.Hub
}

func newTestServer(t *testing.T, cfg config.Config) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := testServer{
		orders:   &fakeOrderService{order: orderdomain.Order{ID: testOrderID, MerchantID: testMerchantID, BuyerID: testBuyerID, Version: 1}},
		quota:    &fakeQuotaService{},
		dispatch: &fakeDispatchService{},
		hub:      liveevents.NewHub(4, 4),
	}
	ts.srv = NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		Log:         zap.NewNop(),
		AuthzSvc:    authzSvc,
		OrderSvc:    ts.orders,
		QuotaSvc:    ts.quota,
		DispatchSvc: ts.dispatch,
		LiveEvents:  ts.hub,
	})
	return ts
}

func (ts testServer) do(method, path string, as *actor.Actor, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set(HeaderActorType, string(as.Type))
		req.Header.Set(HeaderActorID, as.ID.String())
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(resp, req)
	return resp
}

func asActor(typ actor.Type, id snowflake.ID) *actor.Actor {
	return &actor.Actor{Type: typ, ID: id}
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Error
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Data
}

func TestActorRequired(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	cases := []struct {
		name    string
		headers []string
	}{
		{name: "missing", headers: nil},
		{name: "system", headers: []string{HeaderActorType, "SYSTEM", HeaderActorID, "1"}},
		{name: "unknown type", headers: []string{HeaderActorType, "ROBOT", HeaderActorID, "1"}},
		{name: "bad id", headers: []string{HeaderActorType, "BUYER", HeaderActorID, "abc"}},
		{name: "zero id", headers: []string{HeaderActorType, "BUYER", HeaderActorID, "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(http.MethodGet, "/api/orders", nil, nil, tc.headers...)
			require.Equal(t, http.StatusUnauthorized, resp.Code)
			require.Equal(t, "unauthorized", decodeError(t, resp).Type)
		})
	}
	require.Empty(t, ts.orders.actors)
}
