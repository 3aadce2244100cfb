package server

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/config"
	"github.com/smallbiznis/pasarku/internal/events"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHTTP registers the server shutdown before any stream body is opened so
// cleanups close client connections first.
func startHTTP(t *testing.T, ts testServer) *httptest.Server {
	t.Helper()
	httpSrv := httptest.NewServer(ts.srv.Engine())
	t.Cleanup(httpSrv.Close)
	return httpSrv
}

func openStream(t *testing.T, baseURL, path string, as actor.Actor) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderActorType, string(as.Type))
	req.Header.Set(HeaderActorID, as.ID.String())

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

// readBlock returns the lines of the next SSE block.
func readBlock(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return lines
		}
		lines = append(lines, line)
	}
}

func orderEvent(orderID snowflake.ID, version int64, typ events.Type, buyerVisible bool) events.OrderEvent {
	return events.OrderEvent{
		ID:           orderID.String() + "-" + string(typ),
		OrderID:      orderID,
		MerchantID:   testMerchantID,
		BuyerID:      testBuyerID,
		Version:      version,
		Type:         typ,
		ToStatus:     "NEW",
		ActorType:    string(actor.TypeBuyer),
		BuyerVisible: buyerVisible,
	}
}

func TestStreamDeliversMerchantEvents(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	httpSrv := startHTTP(t, ts)

	r := openStream(t, httpSrv.URL, "/api/streams/merchant/"+testMerchantID.String(), actor.Actor{Type: actor.TypeMerchant, ID: testMerchantID})
	assert.Equal(t, []string{"retry: 2000"}, readBlock(t, r))

	require.True(t, ts.hub.Publish(orderEvent(testOrderID, 1, events.TypeNewOrder, false)))

	block := readBlock(t, r)
	require.Len(t, block, 3)
	assert.Equal(t, "id: 1", block[0])
	assert.Equal(t, "event: "+sseEventOrder, block[1])
	assert.Contains(t, block[2], `"type":"NEW_ORDER"`)
}

func TestStreamSendsHeartbeat(t *testing.T) {
	cfg := config.Config{Fulfillment: config.DefaultFulfillment()}
	cfg.Fulfillment.LiveHeartbeat = 20 * time.Millisecond
	ts := newTestServer(t, cfg)
	httpSrv := startHTTP(t, ts)

	r := openStream(t, httpSrv.URL, "/api/streams/courier/"+testCourierID.String(), actor.Actor{Type: actor.TypeCourier, ID: testCourierID})
	readBlock(t, r)

	assert.Equal(t, []string{": heartbeat"}, readBlock(t, r))
}

func TestBuyerOrderStreamSkipsMerchantOnlyEvents(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	httpSrv := startHTTP(t, ts)

	r := openStream(t, httpSrv.URL, "/api/streams/order/"+testOrderID.String(), actor.Actor{Type: actor.TypeBuyer, ID: testBuyerID})
	readBlock(t, r)

	require.True(t, ts.hub.Publish(orderEvent(testOrderID, 1, events.TypeNewOrder, false)))
	require.True(t, ts.hub.Publish(orderEvent(testOrderID, 2, events.TypeStatusChanged, true)))

	block := readBlock(t, r)
	require.Len(t, block, 3)
	assert.Contains(t, block[2], `"type":"STATUS_CHANGED"`)
	assert.Equal(t, "get", ts.orders.called())
}

func TestStreamResyncWhenCursorIsStale(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	other, _, _, err := ts.hub.Subscribe("merchant:"+otherMerchant.String(), 0)
	require.NoError(t, err)
	defer other.Close()
	for version := int64(1); version <= 2; version++ {
		evt := orderEvent(snowflake.ID(9002), version, events.TypeStatusChanged, true)
		evt.MerchantID = otherMerchant
		require.True(t, ts.hub.Publish(evt))
	}

	resp := ts.do(http.MethodGet, "/api/streams/merchant/"+testMerchantID.String(), asActor(actor.TypeMerchant, testMerchantID), nil, "Last-Event-ID", "1")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "event: "+sseEventResync)
}

func TestStreamAccess(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	cases := []struct {
		name   string
		path   string
		as     *actor.Actor
		status int
	}{
		{name: "foreign merchant", path: "/api/streams/merchant/" + otherMerchant.String(), as: asActor(actor.TypeMerchant, testMerchantID), status: http.StatusForbidden},
		{name: "foreign buyer", path: "/api/streams/buyer/" + testBuyerID.String(), as: asActor(actor.TypeBuyer, snowflake.ID(1002)), status: http.StatusForbidden},
		{name: "foreign courier", path: "/api/streams/courier/" + testCourierID.String(), as: asActor(actor.TypeCourier, otherCourier), status: http.StatusForbidden},
		{name: "unknown kind", path: "/api/streams/village/1", as: asActor(actor.TypeAdmin, testAdminID), status: http.StatusBadRequest},
		{name: "bad cursor", path: "/api/streams/merchant/" + testMerchantID.String() + "?after=x", as: asActor(actor.TypeMerchant, testMerchantID), status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(http.MethodGet, tc.path, tc.as, nil)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestStreamOrderAccessFollowsOrderRead(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.orders.getErr = orderdomain.ErrOrderAccessDenied

	resp := ts.do(http.MethodGet, "/api/streams/order/"+testOrderID.String(), asActor(actor.TypeCourier, testCourierID), nil)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestStreamUnavailableWithoutHub(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.srv.liveEvents = nil

	resp := ts.do(http.MethodGet, "/api/streams/merchant/"+testMerchantID.String(), asActor(actor.TypeMerchant, testMerchantID), nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
