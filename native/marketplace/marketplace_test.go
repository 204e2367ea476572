package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/common"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/storage"
)

var (
	admin        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000bb")
	distributor  = ethcommon.HexToAddress("0x00000000000000000000000000000000000000bc")
	configurator = ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	arbitrator   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000ab")
	creator      = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c0")
	collaborator = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d0")
	reseller     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d1")
	stranger     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e0")
)

const (
	genesisTime = int64(1_700_000_000)
	day         = int64(86_400)
)

func wei(v int64) *big.Int { return big.NewInt(v) }

var oneEther = wei(1_000_000_000_000_000_000)

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *testClock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

type recordingSink struct {
	mu        sync.Mutex
	transfers []Transfer
	fail      map[string]error
	hook      func(Transfer)
}

func (s *recordingSink) Send(_ context.Context, t Transfer) error {
	if s.hook != nil {
		s.hook(t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[t.Purpose]; err != nil {
		return err
	}
	s.transfers = append(s.transfers, t)
	return nil
}

func (s *recordingSink) sent() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transfer(nil), s.transfers...)
}

type fixture struct {
	m       *Marketplace
	clock   *testClock
	sink    *recordingSink
	emitted *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	clock := &testClock{now: genesisTime}
	sink := &recordingSink{fail: make(map[string]error)}
	emitted := &events.Buffer{}
	m, err := New(db,
		WithClock(clock.Now),
		WithSink(sink),
		WithEmitter(emitted),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background(), Genesis{
		Admin:             admin,
		Treasury:          treasury,
		Distributor:       distributor,
		PlatformFeeBps:    250,
		DefaultRoyaltyBps: 1_000,
		LedgerPenaltyBps:  500,
		PenaltyRateBps:    500,
		Configurators:     []ethcommon.Address{configurator},
		Arbitrators:       []ethcommon.Address{arbitrator},
	}))
	return &fixture{m: m, clock: clock, sink: sink, emitted: emitted}
}

func (f *fixture) mint(t *testing.T, owner ethcommon.Address) uint64 {
	t.Helper()
	asset, err := f.m.MintAsset(context.Background(), owner, owner, "ipfs://asset")
	require.NoError(t, err)
	return asset.ID
}

func (f *fixture) balance(t *testing.T, account ethcommon.Address) *big.Int {
	t.Helper()
	bal, err := f.m.Balance(account)
	require.NoError(t, err)
	return bal
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, evt := range f.emitted.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func TestInitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.m.Initialised())
	require.NoError(t, f.m.Init(context.Background(), Genesis{Admin: stranger, Treasury: stranger, PlatformFeeBps: 9_000}))
	params, err := f.m.Params()
	require.NoError(t, err)
	require.Equal(t, treasury, params.Treasury)
	require.Equal(t, uint32(250), params.PlatformFeeBps)
	require.True(t, f.m.HasRole(access.RoleAdmin, admin))
	require.False(t, f.m.HasRole(access.RoleAdmin, stranger))
	require.True(t, f.m.HasRole(access.RoleConfigurator, configurator))
}

func TestDistributePrimaryAndSecondary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	require.NoError(t, f.m.ConfigureSplit(ctx, configurator, asset, []ethcommon.Address{creator, collaborator}, []uint32{5_000, 5_000}))

	dist, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)
	require.Equal(t, revenue.SalePrimary, dist.Sale.Kind)
	require.Equal(t, wei(25_000_000_000_000_000), f.balance(t, treasury))
	require.Equal(t, wei(487_500_000_000_000_000), f.balance(t, creator))
	require.Equal(t, wei(487_500_000_000_000_000), f.balance(t, collaborator))

	dist, err = f.m.DistributePayment(ctx, asset, oneEther, reseller, oneEther)
	require.NoError(t, err)
	require.Equal(t, revenue.SaleSecondary, dist.Sale.Kind)
	require.Equal(t, wei(97_500_000_000_000_000), dist.Royalty)
	require.Equal(t, wei(877_500_000_000_000_000), f.balance(t, reseller))
	require.Equal(t, wei(536_250_000_000_000_000), f.balance(t, creator))
	require.Equal(t, wei(50_000_000_000_000_000), f.balance(t, treasury))
}

func TestDistributeConservesValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	recipients := []ethcommon.Address{creator, collaborator, configurator}
	require.NoError(t, f.m.ConfigureSplit(ctx, configurator, asset, recipients, []uint32{3_333, 3_333, 3_334}))

	dist, err := f.m.DistributePayment(ctx, asset, wei(1_000), creator, wei(1_000))
	require.NoError(t, err)
	total := new(big.Int).Set(dist.Dust)
	for _, account := range append(recipients, treasury) {
		total.Add(total, f.balance(t, account))
	}
	require.Equal(t, wei(1_000), total)
	require.True(t, dist.Dust.Cmp(wei(int64(len(recipients)))) < 0)
	dust, err := f.m.Dust()
	require.NoError(t, err)
	require.Equal(t, dist.Dust, dust)
}

func TestSplitRejectionKeepsPreviousConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	require.NoError(t, f.m.ConfigureSplit(ctx, configurator, asset, []ethcommon.Address{creator}, []uint32{10_000}))

	err := f.m.ConfigureSplit(ctx, configurator, asset, []ethcommon.Address{creator, collaborator}, []uint32{5_000, 4_999})
	require.ErrorIs(t, err, revenue.ErrInvalidSharesSum)
	require.Equal(t, KindValidation, Kind(err))
	err = f.m.ConfigureSplit(ctx, stranger, asset, []ethcommon.Address{collaborator}, []uint32{10_000})
	require.ErrorIs(t, err, access.ErrUnauthorized)

	split, err := f.m.Split(asset)
	require.NoError(t, err)
	require.Equal(t, []ethcommon.Address{creator}, split.Recipients)
}

func TestDistributeNoSplitAndInvalidAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)

	dist, err := f.m.DistributePayment(ctx, asset, oneEther, reseller, oneEther)
	require.NoError(t, err)
	require.Equal(t, revenue.SaleUnsplit, dist.Sale.Kind)
	require.Equal(t, wei(975_000_000_000_000_000), f.balance(t, creator))

	before := len(f.emitted.Events())
	_, err = f.m.DistributePayment(ctx, 99, oneEther, reseller, oneEther)
	require.ErrorIs(t, err, licensing.ErrInvalidTokenID)
	require.Equal(t, KindNotFound, Kind(err))
	require.Equal(t, wei(25_000_000_000_000_000), f.balance(t, treasury))
	require.Len(t, f.emitted.Events(), before, "failed calls must not publish events")

	_, err = f.m.DistributePayment(ctx, asset, oneEther, reseller, wei(1))
	require.ErrorIs(t, err, revenue.ErrIncorrectPaymentAmount)
	require.Equal(t, KindPayment, Kind(err))
}

func TestWithdrawPaysPenaltyAndZeroes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	require.NoError(t, f.m.ConfigureSplit(ctx, configurator, asset, []ethcommon.Address{creator, collaborator}, []uint32{5_000, 5_000}))
	_, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)

	f.clock.Advance(30 * day)
	principal, penalty, total, err := f.m.BalanceWithPenalty(creator)
	require.NoError(t, err)
	require.Equal(t, wei(487_500_000_000_000_000), principal)
	require.Equal(t, wei(24_375_000_000_000_000), penalty)
	require.Equal(t, wei(511_875_000_000_000_000), total)

	w, err := f.m.Withdraw(ctx, creator)
	require.NoError(t, err)
	require.Equal(t, total, w.Total)
	sent := f.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, creator, sent[0].To)
	require.Equal(t, total, sent[0].Amount)
	require.Equal(t, PurposeWithdrawal, sent[0].Purpose)
	require.Zero(t, f.balance(t, creator).Sign())
	require.Contains(t, f.eventTypes(), revenue.EventTypePenaltyAccrued)

	_, err = f.m.Withdraw(ctx, creator)
	require.ErrorIs(t, err, revenue.ErrNoBalanceToWithdraw)
	require.Equal(t, KindPrecondition, Kind(err))
}

func TestWithdrawReentrantSinkSeesZeroBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	_, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)

	var (
		innerErr     error
		innerBalance *big.Int
		calls        int
	)
	f.sink.hook = func(tr Transfer) {
		if tr.Purpose != PurposeWithdrawal || calls > 0 {
			return
		}
		calls++
		innerBalance, _ = f.m.Balance(tr.To)
		_, innerErr = f.m.Withdraw(ctx, tr.To)
	}
	w, err := f.m.Withdraw(ctx, creator)
	require.NoError(t, err)
	require.Equal(t, wei(975_000_000_000_000_000), w.Total)
	require.Zero(t, innerBalance.Sign())
	require.ErrorIs(t, innerErr, revenue.ErrNoBalanceToWithdraw)
	require.Len(t, f.sink.sent(), 1)
}

func TestWithdrawInFlightGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	_, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)

	var innerErr error
	f.sink.hook = func(tr Transfer) {
		if innerErr != nil {
			return
		}
		// A fresh credit arrives while the first payout is still pending.
		_, _ = f.m.DistributePayment(ctx, asset, wei(1_000), stranger, wei(1_000))
		_, innerErr = f.m.Withdraw(ctx, tr.To)
	}
	_, err = f.m.Withdraw(ctx, creator)
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, ErrWithdrawalInFlight)
	require.Equal(t, wei(975), f.balance(t, creator), "rejected withdrawal must roll back")
}

func TestWithdrawRestoresOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	_, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)

	f.sink.fail[PurposeWithdrawal] = errors.New("payer offline")
	_, err = f.m.Withdraw(ctx, creator)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.Equal(t, KindTransfer, Kind(err))
	require.Equal(t, wei(975_000_000_000_000_000), f.balance(t, creator))
	require.Contains(t, f.eventTypes(), revenue.EventTypeWithdrawalRestored)
	require.NotContains(t, f.eventTypes(), revenue.EventTypeWithdrawal)

	delete(f.sink.fail, PurposeWithdrawal)
	w, err := f.m.Withdraw(ctx, creator)
	require.NoError(t, err)
	require.Equal(t, wei(975_000_000_000_000_000), w.Principal)
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)

	require.ErrorIs(t, f.m.Pause(ctx, stranger), access.ErrUnauthorized)
	require.NoError(t, f.m.Pause(ctx, admin))
	require.True(t, f.m.Paused())

	_, err := f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, KindPaused, Kind(err))
	require.ErrorIs(t, f.m.ConfigureSplit(ctx, configurator, asset, []ethcommon.Address{creator}, []uint32{10_000}), common.ErrModulePaused)

	require.NoError(t, f.m.Unpause(ctx, admin))
	require.False(t, f.m.Paused())
	_, err = f.m.DistributePayment(ctx, asset, oneEther, creator, oneEther)
	require.NoError(t, err)
}

func TestRoyaltyAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)

	receiver, amount, err := f.m.RoyaltyInfo(asset, oneEther)
	require.NoError(t, err)
	require.Equal(t, distributor, receiver)
	require.Equal(t, wei(100_000_000_000_000_000), amount)

	require.NoError(t, f.m.SetAssetRoyalty(ctx, configurator, asset, 0))
	_, amount, err = f.m.RoyaltyInfo(asset, oneEther)
	require.NoError(t, err)
	require.Zero(t, amount.Sign(), "explicit zero override")

	require.NoError(t, f.m.ClearAssetRoyalty(ctx, configurator, asset))
	require.ErrorIs(t, f.m.SetDefaultRoyalty(ctx, configurator, 500), access.ErrUnauthorized)
	require.ErrorIs(t, f.m.SetDefaultRoyalty(ctx, admin, 10_001), revenue.ErrInvalidRoyaltyRate)
	require.NoError(t, f.m.SetDefaultRoyalty(ctx, admin, 500))
	_, amount, err = f.m.RoyaltyInfo(asset, oneEther)
	require.NoError(t, err)
	require.Equal(t, wei(50_000_000_000_000_000), amount)
}

func TestPenaltyRateAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.ErrorIs(t, f.m.SetPenaltyRate(ctx, stranger, 700), access.ErrUnauthorized)
	require.ErrorIs(t, f.m.SetPenaltyRate(ctx, admin, 1_001), recurring.ErrInvalidPenaltyRate)
	require.NoError(t, f.m.SetPenaltyRate(ctx, admin, 700))
	rate, err := f.m.PenaltyRate()
	require.NoError(t, err)
	require.Equal(t, uint32(700), rate)

	require.ErrorIs(t, f.m.GrantConfiguratorRole(ctx, configurator, stranger), access.ErrUnauthorized)
	require.NoError(t, f.m.GrantConfiguratorRole(ctx, admin, stranger))
	require.True(t, f.m.HasRole(access.RoleConfigurator, stranger))
	require.NoError(t, f.m.RevokeConfiguratorRole(ctx, admin, stranger))
	require.False(t, f.m.HasRole(access.RoleConfigurator, stranger))
}

// recurringLicense mints an asset split entirely to the creator, issues a
// monthly license and sells it to buyer for one ether.
func recurringLicense(t *testing.T, f *fixture) (assetID, licenseID uint64) {
	t.Helper()
	ctx := context.Background()
	assetID = f.mint(t, creator)
	require.NoError(t, f.m.ConfigureSplit(ctx, configurator, assetID, []ethcommon.Address{creator}, []uint32{10_000}))
	license, err := f.m.IssueLicense(ctx, creator, licensing.IssueParams{
		AssetID:         assetID,
		Holder:          creator,
		PaymentInterval: uint64(30 * day),
	})
	require.NoError(t, err)
	listing, err := f.m.CreateListing(ctx, creator, ListingParams{AssetID: assetID, LicenseID: license.ID, Price: oneEther})
	require.NoError(t, err)
	_, err = f.m.PurchaseListing(ctx, buyer, listing.ID, oneEther)
	require.NoError(t, err)
	return assetID, license.ID
}

func TestRecurringPaymentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, licenseID := recurringLicense(t, f)

	st, err := f.m.RecurringState(licenseID)
	require.NoError(t, err)
	require.Equal(t, genesisTime, st.LastPayment)
	require.Equal(t, buyer, st.CurrentOwner)
	require.Equal(t, oneEther, st.BaseAmount)
	require.Equal(t, wei(975_000_000_000_000_000), f.balance(t, creator))

	f.clock.Advance(30 * day)
	due, err := f.m.TotalPaymentDue(licenseID)
	require.NoError(t, err)
	require.Equal(t, oneEther, due.Total)

	overpay := wei(1_500_000_000_000_000_000)
	payment, err := f.m.MakePayment(ctx, licenseID, buyer, overpay)
	require.NoError(t, err)
	require.Equal(t, wei(500_000_000_000_000_000), payment.Refund)
	sent := f.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, PurposeRefund, sent[0].Purpose)
	require.Equal(t, buyer, sent[0].To)
	require.Equal(t, wei(1_950_000_000_000_000_000), f.balance(t, creator))

	f.clock.Advance(63 * day)
	missed, err := f.m.MissedPayments(licenseID)
	require.NoError(t, err)
	require.Equal(t, uint64(2), missed)
	penalty, err := f.m.CalculatePenalty(licenseID)
	require.NoError(t, err)
	require.Equal(t, wei(50_000_000_000_000_000), penalty)

	_, err = f.m.MakePayment(ctx, licenseID, buyer, wei(1))
	require.ErrorIs(t, err, recurring.ErrInsufficientPayment)
}

func TestRecurringRevocationIsCommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, licenseID := recurringLicense(t, f)

	f.clock.Advance(121 * day)
	missed, err := f.m.MissedPayments(licenseID)
	require.NoError(t, err)
	require.Equal(t, uint64(4), missed)

	_, err = f.m.MakePayment(ctx, licenseID, buyer, oneEther)
	require.ErrorIs(t, err, recurring.ErrLicenseRevokedForMissedPayments)
	require.True(t, IsTerminal(err))
	require.Equal(t, KindTerminal, Kind(err))

	license, err := f.m.License(licenseID)
	require.NoError(t, err)
	require.True(t, license.Revoked())
	require.Equal(t, licensing.RevocationMissedPayments, license.Revocation)
	require.Contains(t, f.eventTypes(), recurring.EventTypeLicenseRevoked)
	require.Contains(t, f.eventTypes(), licensing.EventTypeLicenseRevoked)

	_, err = f.m.MakePayment(ctx, licenseID, buyer, oneEther)
	require.ErrorIs(t, err, recurring.ErrLicenseNotActive)
}

func TestMakePaymentRequiresTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	oneTime, err := f.m.IssueLicense(ctx, creator, licensing.IssueParams{AssetID: asset, Holder: buyer})
	require.NoError(t, err)
	_, err = f.m.MakePayment(ctx, oneTime.ID, buyer, oneEther)
	require.ErrorIs(t, err, recurring.ErrNotRecurringLicense)

	monthly, err := f.m.IssueLicense(ctx, creator, licensing.IssueParams{AssetID: asset, Holder: buyer, PaymentInterval: uint64(30 * day)})
	require.NoError(t, err)
	_, err = f.m.MakePayment(ctx, monthly.ID, buyer, oneEther)
	require.ErrorIs(t, err, recurring.ErrNotRecurringLicense)
}

func TestArbitratorRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, licenseID := recurringLicense(t, f)
	require.ErrorIs(t, f.m.RevokeLicense(ctx, stranger, licenseID, "x"), access.ErrUnauthorized)
	require.NoError(t, f.m.RevokeLicense(ctx, arbitrator, licenseID, "infringement"))
	f.clock.Advance(30 * day)
	_, err := f.m.MakePayment(ctx, licenseID, buyer, oneEther)
	require.ErrorIs(t, err, recurring.ErrLicenseNotActive)
}

func TestPurchaseRollsBackOnPaymentMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	listing, err := f.m.CreateListing(ctx, creator, ListingParams{AssetID: asset, Price: oneEther})
	require.NoError(t, err)

	_, err = f.m.PurchaseListing(ctx, buyer, listing.ID, wei(1))
	require.ErrorIs(t, err, revenue.ErrIncorrectPaymentAmount)
	stored, err := f.m.Listing(listing.ID)
	require.NoError(t, err)
	require.True(t, stored.Active, "listing must stay active after a failed purchase")
	owned, err := f.m.Asset(asset)
	require.NoError(t, err)
	require.Equal(t, creator, owned.Owner)

	_, err = f.m.PurchaseListing(ctx, creator, listing.ID, oneEther)
	require.ErrorIs(t, err, ErrSelfTrade)

	_, err = f.m.PurchaseListing(ctx, buyer, listing.ID, oneEther)
	require.NoError(t, err)
	owned, err = f.m.Asset(asset)
	require.NoError(t, err)
	require.Equal(t, buyer, owned.Owner)
	require.Equal(t, wei(975_000_000_000_000_000), f.balance(t, creator), "unsplit sale pays the selling owner")

	_, err = f.m.PurchaseListing(ctx, reseller, listing.ID, oneEther)
	require.ErrorIs(t, err, ErrListingInactive)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	_, err := f.m.CreateListing(ctx, stranger, ListingParams{AssetID: asset, Price: oneEther})
	require.ErrorIs(t, err, licensing.ErrNotOwner)
	_, err = f.m.CreateListing(ctx, creator, ListingParams{AssetID: asset, Price: wei(0)})
	require.ErrorIs(t, err, ErrInvalidPrice)

	listing, err := f.m.CreateListing(ctx, creator, ListingParams{AssetID: asset, Price: oneEther})
	require.NoError(t, err)
	require.ErrorIs(t, f.m.CancelListing(ctx, stranger, listing.ID), ErrNotSeller)
	require.NoError(t, f.m.CancelListing(ctx, creator, listing.ID))
	_, err = f.m.PurchaseListing(ctx, buyer, listing.ID, oneEther)
	require.ErrorIs(t, err, ErrListingInactive)
	_, err = f.m.Listing(42)
	require.ErrorIs(t, err, ErrListingNotFound)
}

func TestOfferLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	expiry := genesisTime + day

	_, err := f.m.MakeOffer(ctx, buyer, OfferParams{AssetID: asset, ExpiresAt: genesisTime}, oneEther)
	require.ErrorIs(t, err, ErrInvalidExpiry)

	first, err := f.m.MakeOffer(ctx, buyer, OfferParams{AssetID: asset, ExpiresAt: expiry}, oneEther)
	require.NoError(t, err)
	second, err := f.m.MakeOffer(ctx, reseller, OfferParams{AssetID: asset, ExpiresAt: expiry}, wei(2_000_000_000_000_000_000))
	require.NoError(t, err)

	_, err = f.m.CancelOffer(ctx, stranger, first.ID)
	require.ErrorIs(t, err, ErrNotOfferMaker)
	cancelled, err := f.m.CancelOffer(ctx, buyer, first.ID)
	require.NoError(t, err)
	require.Equal(t, OfferCancelled, cancelled.Status)
	sent := f.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, PurposeOfferRefund, sent[0].Purpose)
	require.Equal(t, oneEther, sent[0].Amount)

	_, err = f.m.AcceptOffer(ctx, creator, first.ID)
	require.ErrorIs(t, err, ErrOfferNotOpen)
	_, err = f.m.AcceptOffer(ctx, stranger, second.ID)
	require.ErrorIs(t, err, licensing.ErrNotOwner)

	accepted, err := f.m.AcceptOffer(ctx, creator, second.ID)
	require.NoError(t, err)
	require.Equal(t, OfferAccepted, accepted.Status)
	owned, err := f.m.Asset(asset)
	require.NoError(t, err)
	require.Equal(t, reseller, owned.Owner)
	require.Equal(t, wei(1_950_000_000_000_000_000), f.balance(t, creator))
	require.Contains(t, f.eventTypes(), EventTypeOfferAccepted)
}

func TestOfferExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	offer, err := f.m.MakeOffer(ctx, buyer, OfferParams{AssetID: asset, ExpiresAt: genesisTime + day}, oneEther)
	require.NoError(t, err)
	f.clock.Advance(day)
	_, err = f.m.AcceptOffer(ctx, creator, offer.ID)
	require.ErrorIs(t, err, ErrOfferExpired)
	_, err = f.m.CancelOffer(ctx, buyer, offer.ID)
	require.NoError(t, err, "expired offers can still be reclaimed")
}

func TestRefundFallsBackToLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	offer, err := f.m.MakeOffer(ctx, buyer, OfferParams{AssetID: asset, ExpiresAt: genesisTime + day}, oneEther)
	require.NoError(t, err)

	f.sink.fail[PurposeOfferRefund] = errors.New("payer offline")
	_, err = f.m.CancelOffer(ctx, buyer, offer.ID)
	require.NoError(t, err)
	require.Equal(t, oneEther, f.balance(t, buyer))
	require.Contains(t, f.eventTypes(), EventTypeRefundCredited)
}

func TestConcurrentDistributionsAreSerialised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := f.mint(t, creator)
	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.m.DistributePayment(ctx, asset, wei(10_000), reseller, wei(10_000)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, wei(workers*250), f.balance(t, treasury))
	require.Equal(t, wei(workers*9_750), f.balance(t, creator))
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("wrapped: %w", revenue.ErrArrayLengthMismatch), KindValidation},
		{revenue.ErrInvalidAmount, KindValidation},
		{licensing.ErrInvalidPaymentInterval, KindValidation},
		{access.ErrUnauthorized, KindAuthorization},
		{revenue.ErrNoBalanceToWithdraw, KindPrecondition},
		{licensing.ErrInsufficientMissedPayments, KindPrecondition},
		{recurring.ErrInsufficientPayment, KindPayment},
		{recurring.ErrLicenseRevokedForMissedPayments, KindTerminal},
		{common.ErrModulePaused, KindPaused},
		{ErrOfferNotFound, KindNotFound},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Kind(tc.err), "%v", tc.err)
	}
}

func TestReturnTransferCreditsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transfer := newTransfer(buyer, wei(1_500), PurposeWithdrawal, "")

	err := f.m.ReturnTransfer(ctx, stranger, transfer, "bounced")
	require.ErrorIs(t, err, access.ErrUnauthorized)
	require.Zero(t, f.balance(t, buyer).Sign())

	require.NoError(t, f.m.ReturnTransfer(ctx, admin, transfer, "bounced"))
	require.Equal(t, wei(1_500), f.balance(t, buyer))
	require.Contains(t, f.eventTypes(), EventTypeRefundCredited)

	require.ErrorIs(t, f.m.ReturnTransfer(ctx, admin, Transfer{To: buyer}, ""), ErrInvalidPrice)
}
