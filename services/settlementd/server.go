package settlementd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/indexer"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/outbox"
)

const serviceName = "settlementd"

// EventSource serves indexed events.
type EventSource interface {
	Query(filter indexer.Filter) ([]indexer.EventRecord, error)
}

// TransferQueue exposes the outbox to the payer endpoints.
type TransferQueue interface {
	Pending(limit int) ([]outbox.Record, error)
	Get(id string) (outbox.Record, error)
	MarkSent(id, txRef string) (outbox.Record, error)
	MarkFailed(id, note string) (outbox.Record, error)
}

// ServerConfig captures the dependencies required to construct the server.
type ServerConfig struct {
	Market  *marketplace.Marketplace
	Events  EventSource
	Outbox  TransferQueue
	Auth    *Authenticator
	Limiter *RateLimiter
	Logger  *slog.Logger
}

// Server exposes the marketplace over HTTP/JSON.
type Server struct {
	market  *marketplace.Marketplace
	events  EventSource
	outbox  TransferQueue
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger

	// settleMu serialises failure settlements so a transfer is credited back once.
	settleMu sync.Mutex
	router   http.Handler
}

// NewServer constructs the router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Market == nil {
		return nil, errors.New("settlementd: marketplace required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("settlementd: authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		market:  cfg.Market,
		events:  cfg.Events,
		outbox:  cfg.Outbox,
		auth:    cfg.Auth,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}

		api.Post("/payments/distribute", s.handleDistribute)
		api.Post("/withdraw", s.handleWithdraw)
		api.Get("/balances/{account}", s.handleBalance)

		api.Put("/splits/{assetID}", s.handleConfigureSplit)
		api.Get("/splits/{assetID}", s.handleGetSplit)

		api.Put("/royalty/default", s.handleSetDefaultRoyalty)
		api.Put("/royalty/assets/{assetID}", s.handleSetAssetRoyalty)
		api.Delete("/royalty/assets/{assetID}", s.handleClearAssetRoyalty)
		api.Get("/royalty/{assetID}", s.handleRoyaltyInfo)

		api.Put("/penalty-rate", s.handleSetPenaltyRate)
		api.Get("/penalty-rate", s.handleGetPenaltyRate)
		api.Get("/params", s.handleParams)

		api.Post("/roles/{role}", s.handleRole)
		api.Post("/pause", s.handlePause)
		api.Post("/unpause", s.handleUnpause)

		api.Post("/assets", s.handleMintAsset)
		api.Get("/assets/{assetID}", s.handleGetAsset)

		api.Post("/licenses", s.handleIssueLicense)
		api.Get("/licenses/{licenseID}", s.handleGetLicense)
		api.Post("/licenses/{licenseID}/payments", s.handleMakePayment)
		api.Get("/licenses/{licenseID}/due", s.handlePaymentDue)
		api.Post("/licenses/{licenseID}/revoke", s.handleRevokeLicense)

		api.Post("/listings", s.handleCreateListing)
		api.Get("/listings/{listingID}", s.handleGetListing)
		api.Delete("/listings/{listingID}", s.handleCancelListing)
		api.Post("/listings/{listingID}/purchase", s.handlePurchaseListing)

		api.Post("/offers", s.handleMakeOffer)
		api.Get("/offers/{offerID}", s.handleGetOffer)
		api.Delete("/offers/{offerID}", s.handleCancelOffer)
		api.Post("/offers/{offerID}/accept", s.handleAcceptOffer)

		api.Get("/events", s.handleEvents)

		api.Get("/outbox", s.handleOutboxPending)
		api.Post("/outbox/{transferID}/sent", s.handleOutboxSent)
		api.Post("/outbox/{transferID}/failed", s.handleOutboxFailed)
	})
	return r
}

// observe records request metrics keyed by the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe(serviceName, r.Method+" "+route, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialised": s.market.Initialised(),
		"paused":      s.market.Paused(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps marketplace error kinds to HTTP status codes.
func statusFor(kind marketplace.ErrorKind) int {
	switch kind {
	case marketplace.KindValidation:
		return http.StatusBadRequest
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindPrecondition:
		return http.StatusConflict
	case marketplace.KindPayment:
		return http.StatusPaymentRequired
	case marketplace.KindTerminal:
		return http.StatusGone
	case marketplace.KindPaused:
		return http.StatusServiceUnavailable
	case marketplace.KindNotFound:
		return http.StatusNotFound
	case marketplace.KindTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := marketplace.Kind(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("settlementd: request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: string(kind)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func callerOf(w http.ResponseWriter, r *http.Request) (ethcommon.Address, bool) {
	c, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
	}
	return c, ok
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	id, err := parseID(param, chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}
