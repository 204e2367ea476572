package recurring

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
)

var (
	ErrNotRecurringLicense             = errors.New("recurring: license is not recurring")
	ErrLicenseNotActive                = errors.New("recurring: license not active")
	ErrLicenseRevokedForMissedPayments = errors.New("recurring: license revoked for missed payments")
	ErrInsufficientPayment             = errors.New("recurring: insufficient payment")
	ErrInvalidPenaltyRate              = errors.New("recurring: invalid penalty rate")

	errNilState       = errors.New("recurring engine: state not configured")
	errNilOracle      = errors.New("recurring engine: license oracle not configured")
	errNilDistributor = errors.New("recurring engine: distributor not configured")
	errNilPolicy      = errors.New("recurring engine: access policy not configured")
	errInvalidAmount  = errors.New("recurring engine: base amount must be positive")
)

type engineState interface {
	RecurringStateGet(licenseID uint64) (*State, bool, error)
	RecurringStatePut(state *State) error
	RecurringParamsGet() (*Params, bool, error)
	RecurringParamsPut(params *Params) error
}

// Engine tracks recurring license payments and enforces the missed-payment
// threshold.
type Engine struct {
	state       engineState
	oracle      LicenseOracle
	distributor Distributor
	policy      Authorizer
	emitter     events.Emitter
	nowFn       func() int64
}

// NewEngine constructs a recurring payment engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLicenseOracle configures the license registry view.
func (e *Engine) SetLicenseOracle(oracle LicenseOracle) { e.oracle = oracle }

// SetDistributor configures where accepted payments are forwarded.
func (e *Engine) SetDistributor(distributor Distributor) { e.distributor = distributor }

// SetPolicy configures the role check used by SetPenaltyRate.
func (e *Engine) SetPolicy(policy Authorizer) { e.policy = policy }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.oracle == nil {
		return errNilOracle
	}
	return nil
}

// InitParams installs the marketplace-level penalty rate at genesis.
func (e *Engine) InitParams(params Params) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if params.PenaltyRateBps > MaxMarketplacePenaltyRateBps {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidPenaltyRate, params.PenaltyRateBps, MaxMarketplacePenaltyRateBps)
	}
	return e.state.RecurringParamsPut(&params)
}

// SetPenaltyRate updates the marketplace-level penalty rate. Admin only;
// rates above 1000 bps are rejected.
func (e *Engine) SetPenaltyRate(caller ethcommon.Address, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.policy == nil {
		return errNilPolicy
	}
	if err := e.policy.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	if bps > MaxMarketplacePenaltyRateBps {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidPenaltyRate, bps, MaxMarketplacePenaltyRateBps)
	}
	if err := e.state.RecurringParamsPut(&Params{PenaltyRateBps: bps}); err != nil {
		return err
	}
	e.emit(PenaltyRateUpdatedEvent(bps, caller))
	return nil
}

// PenaltyRate returns the marketplace-level penalty rate.
func (e *Engine) PenaltyRate() (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	params, ok, err := e.state.RecurringParamsGet()
	if err != nil {
		return 0, err
	}
	if !ok || params == nil {
		return DefaultPenaltyRateBps, nil
	}
	return params.PenaltyRateBps, nil
}

func (e *Engine) licenseRate(licenseID uint64) (uint32, error) {
	rate, err := e.oracle.PenaltyRate(licenseID)
	if err != nil {
		return 0, err
	}
	if rate > 0 {
		return rate, nil
	}
	return e.PenaltyRate()
}

func (e *Engine) loadState(licenseID uint64) (*State, error) {
	st, ok, err := e.state.RecurringStateGet(licenseID)
	if err != nil {
		return nil, err
	}
	if !ok || st == nil {
		return &State{LicenseID: licenseID, BaseAmount: big.NewInt(0)}, nil
	}
	st.LicenseID = licenseID
	if st.BaseAmount == nil {
		st.BaseAmount = big.NewInt(0)
	}
	return st, nil
}

// State returns the tracker record of a license.
func (e *Engine) State(licenseID uint64) (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadState(licenseID)
}

// InitializeOnFirstPayment starts tracking when a recurring license changes
// hands. One-time licenses (zero interval) are ignored. On an already tracked
// license only the current owner changes; the base amount is immutable.
// The boolean reports whether tracking was started by this call.
func (e *Engine) InitializeOnFirstPayment(licenseID uint64, payer ethcommon.Address, amount *big.Int) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	interval, err := e.oracle.PaymentInterval(licenseID)
	if err != nil {
		return false, err
	}
	if interval == 0 {
		return false, nil
	}
	st, err := e.loadState(licenseID)
	if err != nil {
		return false, err
	}
	if st.Initialized() {
		st.CurrentOwner = payer
		if err := e.state.RecurringStatePut(st); err != nil {
			return false, err
		}
		return false, nil
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, errInvalidAmount
	}
	st.LastPayment = e.now()
	st.CurrentOwner = payer
	st.BaseAmount = new(big.Int).Set(amount)
	if err := e.state.RecurringStatePut(st); err != nil {
		return false, err
	}
	e.emit(TrackingStartedEvent(st, interval))
	return true, nil
}

func missedPayments(st *State, interval uint64, now int64) uint64 {
	if !st.Initialized() || interval == 0 || now <= st.LastPayment {
		return 0
	}
	return uint64(now-st.LastPayment) / interval
}

func secondsLate(st *State, interval uint64, now int64) int64 {
	if !st.Initialized() || interval == 0 {
		return 0
	}
	if interval > uint64(math.MaxInt64-st.LastPayment) {
		return 0
	}
	due := st.LastPayment + int64(interval)
	if now <= due {
		return 0
	}
	return now - due
}

// MissedPayments returns floor((now-lastPayment)/interval), or zero for an
// untracked license.
func (e *Engine) MissedPayments(licenseID uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	interval, err := e.oracle.PaymentInterval(licenseID)
	if err != nil {
		return 0, err
	}
	st, err := e.loadState(licenseID)
	if err != nil {
		return 0, err
	}
	return missedPayments(st, interval, e.now()), nil
}

// Penalty returns the late-payment penalty currently owed on a license.
func (e *Engine) Penalty(licenseID uint64) (*big.Int, error) {
	due, err := e.TotalPaymentDue(licenseID)
	if err != nil {
		return nil, err
	}
	return due.Penalty, nil
}

// TotalPaymentDue returns the base amount, the penalty and their sum. One-time
// and untracked licenses fail with ErrNotRecurringLicense.
func (e *Engine) TotalPaymentDue(licenseID uint64) (*Due, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, interval, err := e.tracked(licenseID)
	if err != nil {
		return nil, err
	}
	return e.due(licenseID, st, interval)
}

// tracked loads the tracker record of a license that has a payment interval
// and has been initialised.
func (e *Engine) tracked(licenseID uint64) (*State, uint64, error) {
	interval, err := e.oracle.PaymentInterval(licenseID)
	if err != nil {
		return nil, 0, err
	}
	if interval == 0 {
		return nil, 0, fmt.Errorf("%w: license %d has no payment interval", ErrNotRecurringLicense, licenseID)
	}
	st, err := e.loadState(licenseID)
	if err != nil {
		return nil, 0, err
	}
	if !st.Initialized() {
		return nil, 0, fmt.Errorf("%w: tracking not initialised for license %d", ErrNotRecurringLicense, licenseID)
	}
	return st, interval, nil
}

func (e *Engine) due(licenseID uint64, st *State, interval uint64) (*Due, error) {
	now := e.now()
	out := &Due{
		Base:        new(big.Int).Set(st.BaseAmount),
		Penalty:     big.NewInt(0),
		Missed:      missedPayments(st, interval, now),
		SecondsLate: secondsLate(st, interval, now),
	}
	if out.SecondsLate > 0 {
		rate, err := e.licenseRate(licenseID)
		if err != nil {
			return nil, err
		}
		out.RateBps = rate
		out.Penalty = CalculatePenalty(st.BaseAmount, rate, out.SecondsLate, GracePeriodSeconds)
	}
	out.Total = new(big.Int).Add(out.Base, out.Penalty)
	return out, nil
}

// MakePayment settles the next period of a recurring license. Once the
// missed-payment count reaches the license maximum the license is revoked
// through the oracle and the payment is rejected with
// ErrLicenseRevokedForMissedPayments; callers must persist the revocation
// even though the call fails. Any excess over the amount due is reported in
// Payment.Refund for the caller to return.
func (e *Engine) MakePayment(licenseID uint64, payer ethcommon.Address, attached *big.Int) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.distributor == nil {
		return nil, errNilDistributor
	}
	st, interval, err := e.tracked(licenseID)
	if err != nil {
		return nil, err
	}
	active, err := e.oracle.IsActiveLicense(licenseID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, fmt.Errorf("%w: license %d", ErrLicenseNotActive, licenseID)
	}
	maxMissed, err := e.oracle.MaxMissedPayments(licenseID)
	if err != nil {
		return nil, err
	}
	due, err := e.due(licenseID, st, interval)
	if err != nil {
		return nil, err
	}
	if due.Missed >= maxMissed {
		if err := e.oracle.RevokeForMissedPayments(licenseID, due.Missed); err != nil {
			return nil, err
		}
		e.emit(LicenseRevokedEvent(licenseID, due.Missed, maxMissed))
		return nil, fmt.Errorf("%w: license %d missed %d of %d", ErrLicenseRevokedForMissedPayments, licenseID, due.Missed, maxMissed)
	}
	if attached == nil || attached.Cmp(due.Total) < 0 {
		return nil, fmt.Errorf("%w: attached %s, due %s", ErrInsufficientPayment, bigString(attached), due.Total)
	}
	assetID, err := e.oracle.AssetOf(licenseID)
	if err != nil {
		return nil, err
	}
	if err := e.distributor.DistributeRecurring(licenseID, assetID, due.Total); err != nil {
		return nil, err
	}
	now := e.now()
	st.LastPayment = now
	st.CurrentOwner = payer
	if err := e.state.RecurringStatePut(st); err != nil {
		return nil, err
	}
	payment := &Payment{
		LicenseID: licenseID,
		AssetID:   assetID,
		Payer:     payer,
		Due:       *due,
		Refund:    new(big.Int).Sub(attached, due.Total),
		PaidAt:    now,
	}
	e.emit(PaymentMadeEvent(payment))
	return payment, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
