package settlementd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/indexer"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/outbox"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/storage"
)

var (
	admin        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000bb")
	configurator = ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	creator      = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c0")
	buyer        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d0")
)

var testAuth = AuthConfig{HMACSecret: "test-secret", Issuer: "softlaw", Audience: "settlementd"}

type harness struct {
	handler http.Handler
	market  *marketplace.Marketplace
	outbox  *outbox.Outbox
}

func newHarness(t *testing.T, limiter *RateLimiter) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := storage.NewMemDB()

	idx, err := indexer.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	queue, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	now := time.Unix(1_700_000_000, 0)
	market, err := marketplace.New(db,
		marketplace.WithClock(func() time.Time { return now }),
		marketplace.WithEmitter(idx),
		marketplace.WithSink(queue),
		marketplace.WithLogger(logger),
	)
	require.NoError(t, err)
	require.NoError(t, market.Init(context.Background(), marketplace.Genesis{
		Admin:             admin,
		Treasury:          treasury,
		PlatformFeeBps:    250,
		DefaultRoyaltyBps: 1_000,
		LedgerPenaltyBps:  500,
		PenaltyRateBps:    500,
		Configurators:     []ethcommon.Address{configurator},
	}))

	auth, err := NewAuthenticator(testAuth, logger)
	require.NoError(t, err)
	server, err := NewServer(ServerConfig{
		Market:  market,
		Events:  idx,
		Outbox:  queue,
		Auth:    auth,
		Limiter: limiter,
		Logger:  logger,
	})
	require.NoError(t, err)
	return &harness{handler: server.Handler(), market: market, outbox: queue}
}

func token(t *testing.T, who ethcommon.Address) string {
	t.Helper()
	tok, err := IssueToken(testAuth, who, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, who *ethcommon.Address, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *who))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (h *harness) mint(t *testing.T, owner ethcommon.Address) uint64 {
	t.Helper()
	rec := h.do(t, &admin, http.MethodPost, "/v1/assets", map[string]string{"owner": owner.Hex(), "uri": "ipfs://song"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[assetView](t, rec).ID
}

func TestHealthAndAuthentication(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, nil, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody[map[string]any](t, rec)["initialised"])

	rec = h.do(t, nil, http.MethodGet, "/v1/params", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	bad := httptest.NewRecorder()
	h.handler.ServeHTTP(bad, req)
	require.Equal(t, http.StatusUnauthorized, bad.Code)

	other, err := IssueToken(AuthConfig{HMACSecret: "other-secret", Issuer: "softlaw", Audience: "settlementd"}, admin, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	bad = httptest.NewRecorder()
	h.handler.ServeHTTP(bad, req)
	require.Equal(t, http.StatusUnauthorized, bad.Code)

	rec = h.do(t, &admin, http.MethodGet, "/v1/params", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	params := decodeBody[paramsView](t, rec)
	require.Equal(t, treasury.Hex(), params.Treasury)
	require.Equal(t, treasury.Hex(), params.Distributor)
	require.Equal(t, uint32(500), params.PenaltyRateBps)
}

func TestDistributeWithdrawAndOutbox(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &configurator, http.MethodPut, fmt.Sprintf("/v1/splits/%d", asset), splitRequest{
		Recipients: []string{creator.Hex()},
		Shares:     []uint32{10_000},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decodeBody[splitView](t, rec).Configured)

	rec = h.do(t, &creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "1000", Value: "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dist := decodeBody[distributionView](t, rec)
	require.Equal(t, "primary", dist.SaleType)
	require.Equal(t, "25", dist.PlatformFee)

	rec = h.do(t, &buyer, http.MethodGet, "/v1/balances/"+creator.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "975", decodeBody[balanceView](t, rec).Total)

	rec = h.do(t, &creator, http.MethodPost, "/v1/withdraw", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "975", decodeBody[withdrawalView](t, rec).Total)

	rec = h.do(t, &creator, http.MethodPost, "/v1/withdraw", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, &creator, http.MethodGet, "/v1/outbox", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, &admin, http.MethodGet, "/v1/outbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[map[string][]outbox.Record](t, rec)["transfers"]
	require.Len(t, pending, 1)
	require.Equal(t, creator.Hex(), pending[0].To)
	require.Equal(t, "975", pending[0].Amount)

	rec = h.do(t, &admin, http.MethodPost, "/v1/outbox/"+pending[0].ID+"/failed", settleRequest{Note: "bank rejected"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, &admin, http.MethodPost, "/v1/outbox/"+pending[0].ID+"/failed", settleRequest{})
	require.Equal(t, http.StatusConflict, rec.Code)

	balance, err := h.market.Balance(creator)
	require.NoError(t, err)
	require.Equal(t, int64(975), balance.Int64())

	rec = h.do(t, &buyer, http.MethodGet, "/v1/events?type=revenue.withdrawal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	withdrawals := decodeBody[map[string][]eventView](t, rec)["events"]
	require.Len(t, withdrawals, 1)
	require.Equal(t, creator.Hex(), withdrawals[0].Attributes["account"])

	rec = h.do(t, &buyer, http.MethodGet, "/v1/events?type="+marketplace.EventTypeRefundCredited, nil)
	require.Len(t, decodeBody[map[string][]eventView](t, rec)["events"], 1)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	cases := []struct {
		name   string
		who    ethcommon.Address
		method string
		path   string
		body   any
		status int
	}{
		{"wrong value", creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "1000", Value: "999"}, http.StatusPaymentRequired},
		{"malformed amount", creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "ten", Value: "10"}, http.StatusBadRequest},
		{"amount over 256 bits", creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "1" + string(bytes.Repeat([]byte("0"), 80)), Value: "1"}, http.StatusBadRequest},
		{"zero amount", creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "0", Value: "0"}, http.StatusBadRequest},
		{"interval beyond timestamps", creator, http.MethodPost, "/v1/licenses", issueRequest{AssetID: asset, Holder: buyer.Hex(), PaymentInterval: math.MaxUint64}, http.StatusBadRequest},
		{"unknown field", creator, http.MethodPost, "/v1/payments/distribute", map[string]any{"asset": 1}, http.StatusBadRequest},
		{"unknown asset", creator, http.MethodGet, "/v1/assets/99", nil, http.StatusNotFound},
		{"default royalty needs admin", configurator, http.MethodPut, "/v1/royalty/default", bpsRequest{Bps: 500}, http.StatusForbidden},
		{"royalty above max", configurator, http.MethodPut, fmt.Sprintf("/v1/royalty/assets/%d", asset), bpsRequest{Bps: 10_001}, http.StatusBadRequest},
		{"nothing to withdraw", buyer, http.MethodPost, "/v1/withdraw", nil, http.StatusConflict},
		{"unknown role", admin, http.MethodPost, "/v1/roles/pilots", roleRequest{Account: buyer.Hex()}, http.StatusNotFound},
		{"pause needs admin", buyer, http.MethodPost, "/v1/pause", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			who := tc.who
			rec := h.do(t, &who, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestPauseReturnsUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &admin, http.MethodPost, "/v1/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[map[string]bool](t, rec)["paused"])

	rec = h.do(t, &creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "100", Value: "100"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, string(marketplace.KindPaused), decodeBody[errorResponse](t, rec).Kind)

	rec = h.do(t, &admin, http.MethodPost, "/v1/unpause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, &creator, http.MethodPost, "/v1/payments/distribute", distributeRequest{AssetID: asset, Amount: "100", Value: "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "unsplit", decodeBody[distributionView](t, rec).SaleType)
}

func TestRolesAndRoyaltyRoutes(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &admin, http.MethodPost, "/v1/roles/configurators", roleRequest{Account: buyer.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decodeBody[map[string]any](t, rec)["granted"])

	rec = h.do(t, &buyer, http.MethodPut, fmt.Sprintf("/v1/royalty/assets/%d", asset), bpsRequest{Bps: 2_000})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, &buyer, http.MethodGet, fmt.Sprintf("/v1/royalty/%d?salePrice=1000", asset), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[royaltyView](t, rec)
	require.Equal(t, "200", info.Amount)
	require.Equal(t, treasury.Hex(), info.Receiver)

	rec = h.do(t, &buyer, http.MethodDelete, fmt.Sprintf("/v1/royalty/assets/%d", asset), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, &buyer, http.MethodGet, fmt.Sprintf("/v1/royalty/%d?salePrice=1000", asset), nil)
	require.Equal(t, "100", decodeBody[royaltyView](t, rec).Amount)

	rec = h.do(t, &admin, http.MethodPost, "/v1/roles/configurators", roleRequest{Account: buyer.Hex(), Revoke: true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody[map[string]any](t, rec)["granted"])

	rec = h.do(t, &admin, http.MethodPut, "/v1/penalty-rate", bpsRequest{Bps: 800})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, &admin, http.MethodGet, "/v1/penalty-rate", nil)
	require.Equal(t, uint32(800), decodeBody[bpsRequest](t, rec).Bps)
	rec = h.do(t, &admin, http.MethodPut, "/v1/penalty-rate", bpsRequest{Bps: 1_001})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingPurchaseFlow(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &creator, http.MethodPost, "/v1/listings", listingRequest{AssetID: asset, Price: "1000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	listing := decodeBody[listingView](t, rec)
	require.True(t, listing.Active)

	rec = h.do(t, &buyer, http.MethodPost, fmt.Sprintf("/v1/listings/%d/purchase", listing.ID), valueRequest{Value: "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decodeBody[listingView](t, rec).Active)

	rec = h.do(t, &buyer, http.MethodGet, fmt.Sprintf("/v1/assets/%d", asset), nil)
	require.Equal(t, buyer.Hex(), decodeBody[assetView](t, rec).Owner)

	rec = h.do(t, &buyer, http.MethodPost, fmt.Sprintf("/v1/listings/%d/purchase", listing.ID), valueRequest{Value: "1000"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, &buyer, http.MethodGet, "/v1/balances/"+creator.Hex(), nil)
	require.Equal(t, "975", decodeBody[balanceView](t, rec).Principal)
}

func TestOfferCancelQueuesRefund(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &buyer, http.MethodPost, "/v1/offers", offerRequest{AssetID: asset, ExpiresAt: 1_700_000_000 + 3_600, Value: "500"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	offer := decodeBody[offerView](t, rec)
	require.Equal(t, "open", offer.Status)

	rec = h.do(t, &creator, http.MethodDelete, fmt.Sprintf("/v1/offers/%d", offer.ID), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, &buyer, http.MethodDelete, fmt.Sprintf("/v1/offers/%d", offer.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decodeBody[offerView](t, rec).Status)

	pending, err := h.outbox.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, marketplace.PurposeOfferRefund, pending[0].Purpose)
	require.Equal(t, buyer.Hex(), pending[0].To)
}

func TestRecurringLicenseRoutes(t *testing.T) {
	h := newHarness(t, nil)
	asset := h.mint(t, creator)

	rec := h.do(t, &creator, http.MethodPost, "/v1/licenses", issueRequest{
		AssetID:           asset,
		Holder:            buyer.Hex(),
		URI:               "ipfs://terms",
		PaymentInterval:   30 * 86_400,
		MaxMissedPayments: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	license := decodeBody[licenseView](t, rec)

	rec = h.do(t, &buyer, http.MethodGet, fmt.Sprintf("/v1/licenses/%d/due", license.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, &buyer, http.MethodPost, fmt.Sprintf("/v1/licenses/%d/payments", license.ID), valueRequest{Value: "100"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRateLimiterThrottlesPerCaller(t *testing.T) {
	h := newHarness(t, NewRateLimiter(RateConfig{RequestsPerMinute: 1, Burst: 1}))
	rec := h.do(t, &buyer, http.MethodGet, "/v1/penalty-rate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, &buyer, http.MethodGet, "/v1/penalty-rate", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = h.do(t, &creator, http.MethodGet, "/v1/penalty-rate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
