package settlementd

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/indexer"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/outbox"
)

type distributeRequest struct {
	AssetID uint64 `json:"assetId"`
	Amount  string `json:"amount"`
	Seller  string `json:"seller"`
	Value   string `json:"value"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req distributeRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seller := caller
	if strings.TrimSpace(req.Seller) != "" {
		if seller, err = parseAddress("seller", req.Seller); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	dist, err := s.market.DistributePayment(r.Context(), req.AssetID, amount, seller, value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDistributionView(dist))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	wd, err := s.market.Withdraw(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalView(wd))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	principal, penalty, total, err := s.market.BalanceWithPenalty(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		Account:   account.Hex(),
		Principal: formatAmount(principal),
		Penalty:   formatAmount(penalty),
		Total:     formatAmount(total),
	})
}

type splitRequest struct {
	Recipients []string `json:"recipients"`
	Shares     []uint32 `json:"shares"`
}

func (s *Server) handleConfigureSplit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	var req splitRequest
	if !decode(w, r, &req) {
		return
	}
	recipients := make([]ethcommon.Address, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		addr, err := parseAddress("recipients", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recipients = append(recipients, addr)
	}
	if err := s.market.ConfigureSplit(r.Context(), caller, assetID, recipients, req.Shares); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeSplit(w, r, assetID)
}

func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	s.writeSplit(w, r, assetID)
}

func (s *Server) writeSplit(w http.ResponseWriter, r *http.Request, assetID uint64) {
	view := splitView{AssetID: assetID, Recipients: []string{}, Shares: []uint32{}}
	configured, err := s.market.IsConfigured(assetID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if configured {
		split, err := s.market.Split(assetID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view.Configured = true
		for _, recipient := range split.Recipients {
			view.Recipients = append(view.Recipients, recipient.Hex())
		}
		view.Shares = append(view.Shares, split.Shares...)
	}
	writeJSON(w, http.StatusOK, view)
}

type bpsRequest struct {
	Bps uint32 `json:"bps"`
}

func (s *Server) handleSetDefaultRoyalty(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req bpsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.market.SetDefaultRoyalty(r.Context(), caller, req.Bps); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAssetRoyalty(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	var req bpsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.market.SetAssetRoyalty(r.Context(), caller, assetID, req.Bps); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAssetRoyalty(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	if err := s.market.ClearAssetRoyalty(r.Context(), caller, assetID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoyaltyInfo(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	price, err := parseAmount(r.URL.Query().Get("salePrice"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "salePrice: "+err.Error())
		return
	}
	receiver, amount, err := s.market.RoyaltyInfo(assetID, price)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, royaltyView{Receiver: receiver.Hex(), Amount: formatAmount(amount)})
}

func (s *Server) handleSetPenaltyRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req bpsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.market.SetPenaltyRate(r.Context(), caller, req.Bps); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPenaltyRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.market.PenaltyRate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bpsRequest{Bps: rate})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.market.Params()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rate, err := s.market.PenaltyRate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dust, err := s.market.Dust()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paramsView{
		Treasury:          params.Treasury.Hex(),
		Distributor:       params.Distributor.Hex(),
		PlatformFeeBps:    params.PlatformFeeBps,
		DefaultRoyaltyBps: params.DefaultRoyaltyBps,
		LedgerPenaltyBps:  params.LedgerPenaltyBps,
		PenaltyRateBps:    rate,
		Dust:              formatAmount(dust),
		Paused:            s.market.Paused(),
	})
}

var rolePaths = map[string]string{
	"admins":        access.RoleAdmin,
	"configurators": access.RoleConfigurator,
	"arbitrators":   access.RoleArbitrator,
}

type roleRequest struct {
	Account string `json:"account"`
	Revoke  bool   `json:"revoke"`
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	role, known := rolePaths[chi.URLParam(r, "role")]
	if !known {
		writeError(w, http.StatusNotFound, "unknown role")
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case role == access.RoleConfigurator && req.Revoke:
		err = s.market.RevokeConfiguratorRole(r.Context(), caller, account)
	case role == access.RoleConfigurator:
		err = s.market.GrantConfiguratorRole(r.Context(), caller, account)
	case req.Revoke:
		err = s.market.RevokeRole(r.Context(), caller, role, account)
	default:
		err = s.market.GrantRole(r.Context(), caller, role, account)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":    role,
		"account": account.Hex(),
		"granted": s.market.HasRole(role, account),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, false)
}

func (s *Server) togglePause(w http.ResponseWriter, r *http.Request, paused bool) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var err error
	if paused {
		err = s.market.Pause(r.Context(), caller)
	} else {
		err = s.market.Unpause(r.Context(), caller)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.market.Paused()})
}

type mintRequest struct {
	Owner string `json:"owner"`
	URI   string `json:"uri"`
}

func (s *Server) handleMintAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if !decode(w, r, &req) {
		return
	}
	owner := caller
	if strings.TrimSpace(req.Owner) != "" {
		var err error
		if owner, err = parseAddress("owner", req.Owner); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	asset, err := s.market.MintAsset(r.Context(), caller, owner, req.URI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAssetView(asset))
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathID(w, r, "assetID")
	if !ok {
		return
	}
	asset, err := s.market.Asset(assetID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAssetView(asset))
}

type issueRequest struct {
	AssetID           uint64 `json:"assetId"`
	Holder            string `json:"holder"`
	URI               string `json:"uri"`
	PaymentInterval   uint64 `json:"paymentInterval"`
	MaxMissedPayments uint64 `json:"maxMissedPayments"`
	PenaltyRateBps    uint32 `json:"penaltyRateBps"`
	ExpiresAt         int64  `json:"expiresAt"`
}

func (s *Server) handleIssueLicense(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !decode(w, r, &req) {
		return
	}
	holder, err := parseAddress("holder", req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	license, err := s.market.IssueLicense(r.Context(), caller, licensing.IssueParams{
		AssetID:           req.AssetID,
		Holder:            holder,
		URI:               req.URI,
		PaymentInterval:   req.PaymentInterval,
		MaxMissedPayments: req.MaxMissedPayments,
		PenaltyRateBps:    req.PenaltyRateBps,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLicenseView(license))
}

func (s *Server) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, ok := pathID(w, r, "licenseID")
	if !ok {
		return
	}
	license, err := s.market.License(licenseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLicenseView(license))
}

type valueRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleMakePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	licenseID, ok := pathID(w, r, "licenseID")
	if !ok {
		return
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	value, err := parseOptionalAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := s.market.MakePayment(r.Context(), licenseID, caller, value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentView{
		LicenseID: payment.LicenseID,
		AssetID:   payment.AssetID,
		Payer:     payment.Payer.Hex(),
		Due:       newDueView(&payment.Due),
		Refund:    formatAmount(payment.Refund),
		PaidAt:    payment.PaidAt,
	})
}

func (s *Server) handlePaymentDue(w http.ResponseWriter, r *http.Request) {
	licenseID, ok := pathID(w, r, "licenseID")
	if !ok {
		return
	}
	due, err := s.market.TotalPaymentDue(licenseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDueView(due))
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRevokeLicense(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	licenseID, ok := pathID(w, r, "licenseID")
	if !ok {
		return
	}
	var req revokeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.market.RevokeLicense(r.Context(), caller, licenseID, req.Reason); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listingRequest struct {
	AssetID   uint64 `json:"assetId"`
	LicenseID uint64 `json:"licenseId"`
	Price     string `json:"price"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req listingRequest
	if !decode(w, r, &req) {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := s.market.CreateListing(r.Context(), caller, marketplace.ListingParams{
		AssetID:   req.AssetID,
		LicenseID: req.LicenseID,
		Price:     price,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListingView(listing))
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	listing, err := s.market.Listing(listingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(listing))
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	listingID, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	if err := s.market.CancelListing(r.Context(), caller, listingID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurchaseListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	listingID, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := s.market.PurchaseListing(r.Context(), caller, listingID, value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(listing))
}

type offerRequest struct {
	AssetID   uint64 `json:"assetId"`
	LicenseID uint64 `json:"licenseId"`
	ExpiresAt int64  `json:"expiresAt"`
	Value     string `json:"value"`
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if !decode(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offer, err := s.market.MakeOffer(r.Context(), caller, marketplace.OfferParams{
		AssetID:   req.AssetID,
		LicenseID: req.LicenseID,
		ExpiresAt: req.ExpiresAt,
	}, value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferView(offer))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := s.market.Offer(offerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := s.market.CancelOffer(r.Context(), caller, offerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := s.market.AcceptOffer(r.Context(), caller, offerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event index not configured")
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{
		Type:      strings.TrimSpace(q.Get("type")),
		AssetID:   strings.TrimSpace(q.Get("assetId")),
		LicenseID: strings.TrimSpace(q.Get("licenseId")),
	}
	if raw := strings.TrimSpace(q.Get("account")); raw != "" {
		account, err := parseAddress("account", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Account = account.Hex()
	}
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after: invalid cursor")
			return
		}
		filter.AfterID = after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit: invalid value")
			return
		}
		filter.Limit = limit
	}
	records, err := s.events.Query(filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{ID: rec.ID, Type: rec.Type, Attributes: rec.Attrs(), CreatedAt: rec.CreatedAt.Unix()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// requireAdmin guards the payer endpoints.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (ethcommon.Address, bool) {
	caller, ok := callerOf(w, r)
	if !ok {
		return caller, false
	}
	if !s.market.HasRole(access.RoleAdmin, caller) {
		writeError(w, http.StatusForbidden, "admin role required")
		return caller, false
	}
	if s.outbox == nil {
		writeError(w, http.StatusServiceUnavailable, "outbox not configured")
		return caller, false
	}
	return caller, true
}

func (s *Server) handleOutboxPending(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.outbox.Pending(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": records})
}

type settleRequest struct {
	TxRef string `json:"txRef"`
	Note  string `json:"note"`
}

func (s *Server) handleOutboxSent(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req settleRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.outbox.MarkSent(chi.URLParam(r, "transferID"), req.TxRef)
	if err != nil {
		s.outboxError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleOutboxFailed settles a transfer the payer could not execute and
// returns its value to the recipient's ledger balance.
func (s *Server) handleOutboxFailed(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "transferID")
	s.settleMu.Lock()
	defer s.settleMu.Unlock()
	current, err := s.outbox.Get(id)
	if err != nil {
		s.outboxError(w, r, err)
		return
	}
	if current.Status != outbox.StatusPending {
		s.outboxError(w, r, outbox.ErrNotPending)
		return
	}
	transfer, err := current.Transfer()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = "payer reported failure"
	}
	if err := s.market.ReturnTransfer(r.Context(), caller, transfer, note); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.outbox.MarkFailed(id, note)
	if err != nil {
		s.outboxError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) outboxError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, outbox.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.fail(w, r, err)
	}
}
