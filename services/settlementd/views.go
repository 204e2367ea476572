package settlementd

import (
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
)

// Response payloads render amounts as decimal strings.

type creditView struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type distributionView struct {
	AssetID        uint64       `json:"assetId"`
	Amount         string       `json:"amount"`
	Seller         string       `json:"seller"`
	SaleType       string       `json:"saleType"`
	RoyaltyBps     uint32       `json:"royaltyBps"`
	PlatformFee    string       `json:"platformFee"`
	Royalty        string       `json:"royalty"`
	SellerProceeds string       `json:"sellerProceeds"`
	Credits        []creditView `json:"credits"`
	Dust           string       `json:"dust"`
}

func newDistributionView(d *revenue.Distribution) distributionView {
	view := distributionView{
		AssetID:        d.AssetID,
		Amount:         formatAmount(d.Amount),
		Seller:         d.Seller.Hex(),
		SaleType:       d.Sale.String(),
		RoyaltyBps:     d.Sale.RoyaltyBps,
		PlatformFee:    formatAmount(d.PlatformFee),
		Royalty:        formatAmount(d.Royalty),
		SellerProceeds: formatAmount(d.SellerProceeds),
		Credits:        make([]creditView, 0, len(d.Credits)),
		Dust:           formatAmount(d.Dust),
	}
	for _, credit := range d.Credits {
		view.Credits = append(view.Credits, creditView{Account: credit.Account.Hex(), Amount: formatAmount(credit.Amount)})
	}
	return view
}

type withdrawalView struct {
	Account    string `json:"account"`
	Principal  string `json:"principal"`
	Penalty    string `json:"penalty"`
	Total      string `json:"total"`
	Months     uint64 `json:"months"`
	Compounded uint64 `json:"compounded"`
}

func newWithdrawalView(w *revenue.Withdrawal) withdrawalView {
	return withdrawalView{
		Account:    w.Account.Hex(),
		Principal:  formatAmount(w.Principal),
		Penalty:    formatAmount(w.Penalty),
		Total:      formatAmount(w.Total),
		Months:     w.Months,
		Compounded: w.Compounded,
	}
}

type balanceView struct {
	Account   string `json:"account"`
	Principal string `json:"principal"`
	Penalty   string `json:"penalty"`
	Total     string `json:"total"`
}

type splitView struct {
	AssetID    uint64   `json:"assetId"`
	Configured bool     `json:"configured"`
	Recipients []string `json:"recipients"`
	Shares     []uint32 `json:"shares"`
}

type royaltyView struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type paramsView struct {
	Treasury          string `json:"treasury"`
	Distributor       string `json:"distributor"`
	PlatformFeeBps    uint32 `json:"platformFeeBps"`
	DefaultRoyaltyBps uint32 `json:"defaultRoyaltyBps"`
	LedgerPenaltyBps  uint32 `json:"ledgerPenaltyBps"`
	PenaltyRateBps    uint32 `json:"penaltyRateBps"`
	Dust              string `json:"dust"`
	Paused            bool   `json:"paused"`
}

type assetView struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	URI       string `json:"uri"`
	CreatedAt int64  `json:"createdAt"`
}

func newAssetView(a *licensing.Asset) assetView {
	return assetView{ID: a.ID, Owner: a.Owner.Hex(), URI: a.URI, CreatedAt: a.CreatedAt}
}

type licenseView struct {
	ID                uint64 `json:"id"`
	AssetID           uint64 `json:"assetId"`
	Issuer            string `json:"issuer"`
	Holder            string `json:"holder"`
	URI               string `json:"uri"`
	PaymentInterval   uint64 `json:"paymentInterval"`
	MaxMissedPayments uint64 `json:"maxMissedPayments"`
	PenaltyRateBps    uint32 `json:"penaltyRateBps"`
	IssuedAt          int64  `json:"issuedAt"`
	ExpiresAt         int64  `json:"expiresAt,omitempty"`
	Revoked           bool   `json:"revoked"`
	Revocation        string `json:"revocation,omitempty"`
}

func newLicenseView(l *licensing.License) licenseView {
	view := licenseView{
		ID:                l.ID,
		AssetID:           l.AssetID,
		Issuer:            l.Issuer.Hex(),
		Holder:            l.Holder.Hex(),
		URI:               l.URI,
		PaymentInterval:   l.PaymentInterval,
		MaxMissedPayments: l.MaxMissedPayments,
		PenaltyRateBps:    l.PenaltyRateBps,
		IssuedAt:          l.IssuedAt,
		ExpiresAt:         l.ExpiresAt,
		Revoked:           l.Revoked(),
	}
	if view.Revoked {
		view.Revocation = l.Revocation.String()
	}
	return view
}

type dueView struct {
	Base        string `json:"base"`
	Penalty     string `json:"penalty"`
	Total       string `json:"total"`
	Missed      uint64 `json:"missed"`
	SecondsLate int64  `json:"secondsLate"`
	RateBps     uint32 `json:"rateBps"`
}

func newDueView(d *recurring.Due) dueView {
	return dueView{
		Base:        formatAmount(d.Base),
		Penalty:     formatAmount(d.Penalty),
		Total:       formatAmount(d.Total),
		Missed:      d.Missed,
		SecondsLate: d.SecondsLate,
		RateBps:     d.RateBps,
	}
}

type paymentView struct {
	LicenseID uint64  `json:"licenseId"`
	AssetID   uint64  `json:"assetId"`
	Payer     string  `json:"payer"`
	Due       dueView `json:"due"`
	Refund    string  `json:"refund"`
	PaidAt    int64   `json:"paidAt"`
}

type listingView struct {
	ID        uint64 `json:"id"`
	Seller    string `json:"seller"`
	AssetID   uint64 `json:"assetId"`
	LicenseID uint64 `json:"licenseId"`
	Price     string `json:"price"`
	CreatedAt int64  `json:"createdAt"`
	Active    bool   `json:"active"`
}

func newListingView(l *marketplace.Listing) listingView {
	return listingView{
		ID:        l.ID,
		Seller:    l.Seller.Hex(),
		AssetID:   l.AssetID,
		LicenseID: l.LicenseID,
		Price:     formatAmount(l.Price),
		CreatedAt: l.CreatedAt,
		Active:    l.Active,
	}
}

type offerView struct {
	ID        uint64 `json:"id"`
	Buyer     string `json:"buyer"`
	AssetID   uint64 `json:"assetId"`
	LicenseID uint64 `json:"licenseId"`
	Amount    string `json:"amount"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Status    string `json:"status"`
}

func newOfferView(o *marketplace.Offer) offerView {
	return offerView{
		ID:        o.ID,
		Buyer:     o.Buyer.Hex(),
		AssetID:   o.AssetID,
		LicenseID: o.LicenseID,
		Amount:    formatAmount(o.Amount),
		CreatedAt: o.CreatedAt,
		ExpiresAt: o.ExpiresAt,
		Status:    o.Status.String(),
	}
}

type eventView struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}
