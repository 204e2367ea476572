package licensing

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
)

var (
	ErrInvalidTokenID             = errors.New("licensing: invalid token id")
	ErrInvalidLicenseID           = errors.New("licensing: invalid license id")
	ErrInsufficientMissedPayments = errors.New("licensing: insufficient missed payments")
	ErrInvalidPenaltyRate         = errors.New("licensing: invalid penalty rate")
	ErrInvalidPaymentInterval     = errors.New("licensing: invalid payment interval")
	ErrNotOwner                   = errors.New("licensing: caller does not own the asset")
	ErrNotHolder                  = errors.New("licensing: caller does not hold the license")
	ErrAlreadyRevoked             = errors.New("licensing: license already revoked")

	errNilState      = errors.New("licensing registry: state not configured")
	errNilPolicy     = errors.New("licensing registry: access policy not configured")
	errZeroAddress   = errors.New("licensing registry: zero address")
	errInvalidExpiry = errors.New("licensing registry: expiry must be in the future")
)

const (
	assetSequence   = "licensing/assets"
	licenseSequence = "licensing/licenses"
)

type registryState interface {
	LicensingAssetGet(assetID uint64) (*Asset, bool, error)
	LicensingAssetPut(asset *Asset) error
	LicensingLicenseGet(licenseID uint64) (*License, bool, error)
	LicensingLicensePut(license *License) error
	NextSequence(name string) (uint64, error)
}

// Registry is the state-backed asset ownership and license registry the
// settlement engine consults.
type Registry struct {
	state   registryState
	policy  Authorizer
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry constructs a registry with default dependencies.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetPolicy configures the role checks used by privileged operations.
func (r *Registry) SetPolicy(policy Authorizer) { r.policy = policy }

// SetEmitter configures the event emitter used by the registry.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || evt == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(WrapEvent(evt))
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

// MintAsset registers a new asset. Callers may mint to themselves; minting on
// behalf of another owner requires the admin role.
func (r *Registry) MintAsset(caller, owner ethcommon.Address, uri string) (*Asset, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if owner == (ethcommon.Address{}) {
		return nil, errZeroAddress
	}
	if caller != owner {
		if r.policy == nil {
			return nil, errNilPolicy
		}
		if err := r.policy.Require(access.RoleAdmin, caller); err != nil {
			return nil, err
		}
	}
	id, err := r.state.NextSequence(assetSequence)
	if err != nil {
		return nil, err
	}
	asset := &Asset{ID: id, Owner: owner, URI: strings.TrimSpace(uri), CreatedAt: r.now()}
	if err := r.state.LicensingAssetPut(asset); err != nil {
		return nil, err
	}
	r.emit(AssetMintedEvent(asset))
	return asset, nil
}

// Asset returns a stored asset.
func (r *Registry) Asset(assetID uint64) (*Asset, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	asset, ok, err := r.state.LicensingAssetGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || asset == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTokenID, assetID)
	}
	asset.ID = assetID
	return asset, nil
}

// OwnerOf returns the current owner of an asset.
func (r *Registry) OwnerOf(assetID uint64) (ethcommon.Address, error) {
	asset, err := r.Asset(assetID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return asset.Owner, nil
}

// TransferAsset moves an asset from its current owner.
func (r *Registry) TransferAsset(from, to ethcommon.Address, assetID uint64) error {
	if to == (ethcommon.Address{}) {
		return errZeroAddress
	}
	asset, err := r.Asset(assetID)
	if err != nil {
		return err
	}
	if asset.Owner != from {
		return fmt.Errorf("%w: asset %d", ErrNotOwner, assetID)
	}
	asset.Owner = to
	if err := r.state.LicensingAssetPut(asset); err != nil {
		return err
	}
	r.emit(AssetTransferredEvent(assetID, from, to))
	return nil
}

// IssueLicense creates a license over an asset owned by the caller.
func (r *Registry) IssueLicense(caller ethcommon.Address, params IssueParams) (*License, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	asset, err := r.Asset(params.AssetID)
	if err != nil {
		return nil, err
	}
	if asset.Owner != caller {
		return nil, fmt.Errorf("%w: asset %d", ErrNotOwner, params.AssetID)
	}
	if params.Holder == (ethcommon.Address{}) {
		return nil, errZeroAddress
	}
	if params.PenaltyRateBps > MaxPenaltyRateBps {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidPenaltyRate, params.PenaltyRateBps, MaxPenaltyRateBps)
	}
	// Intervals are added to unix timestamps.
	if params.PaymentInterval > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPaymentInterval, params.PaymentInterval)
	}
	now := r.now()
	if params.ExpiresAt != 0 && params.ExpiresAt <= now {
		return nil, errInvalidExpiry
	}
	maxMissed := params.MaxMissedPayments
	if maxMissed == 0 {
		maxMissed = DefaultMaxMissedPayments
	}
	id, err := r.state.NextSequence(licenseSequence)
	if err != nil {
		return nil, err
	}
	license := &License{
		ID:                id,
		AssetID:           params.AssetID,
		Issuer:            caller,
		Holder:            params.Holder,
		URI:               strings.TrimSpace(params.URI),
		PaymentInterval:   params.PaymentInterval,
		MaxMissedPayments: maxMissed,
		PenaltyRateBps:    params.PenaltyRateBps,
		IssuedAt:          now,
		ExpiresAt:         params.ExpiresAt,
	}
	if err := r.state.LicensingLicensePut(license); err != nil {
		return nil, err
	}
	r.emit(LicenseIssuedEvent(license))
	return license, nil
}

// License returns a stored license.
func (r *Registry) License(licenseID uint64) (*License, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	license, ok, err := r.state.LicensingLicenseGet(licenseID)
	if err != nil {
		return nil, err
	}
	if !ok || license == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLicenseID, licenseID)
	}
	license.ID = licenseID
	return license, nil
}

// IsActiveLicense reports whether the license is neither revoked nor expired.
func (r *Registry) IsActiveLicense(licenseID uint64) (bool, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return false, err
	}
	return !license.Revoked() && !license.Expired(r.now()), nil
}

// PaymentInterval returns the recurring interval in seconds (0 = one-time).
func (r *Registry) PaymentInterval(licenseID uint64) (uint64, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return 0, err
	}
	return license.PaymentInterval, nil
}

// MaxMissedPayments returns the revocation threshold of a license.
func (r *Registry) MaxMissedPayments(licenseID uint64) (uint64, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return 0, err
	}
	return license.MaxMissedPayments, nil
}

// PenaltyRate returns the license's own penalty rate (0 = marketplace rate).
func (r *Registry) PenaltyRate(licenseID uint64) (uint32, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return 0, err
	}
	return license.PenaltyRateBps, nil
}

// AssetOf returns the asset a license covers.
func (r *Registry) AssetOf(licenseID uint64) (uint64, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return 0, err
	}
	return license.AssetID, nil
}

// HolderOf returns the current license holder.
func (r *Registry) HolderOf(licenseID uint64) (ethcommon.Address, error) {
	license, err := r.License(licenseID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return license.Holder, nil
}

// TransferLicense moves a license from its current holder.
func (r *Registry) TransferLicense(from, to ethcommon.Address, licenseID uint64) error {
	if to == (ethcommon.Address{}) {
		return errZeroAddress
	}
	license, err := r.License(licenseID)
	if err != nil {
		return err
	}
	if license.Holder != from {
		return fmt.Errorf("%w: license %d", ErrNotHolder, licenseID)
	}
	license.Holder = to
	if err := r.state.LicensingLicensePut(license); err != nil {
		return err
	}
	r.emit(LicenseTransferredEvent(licenseID, from, to))
	return nil
}

// RevokeForMissedPayments revokes a license whose missed-payment count has
// reached its threshold.
func (r *Registry) RevokeForMissedPayments(licenseID uint64, missed uint64) error {
	license, err := r.License(licenseID)
	if err != nil {
		return err
	}
	if license.Revoked() {
		return fmt.Errorf("%w: %d", ErrAlreadyRevoked, licenseID)
	}
	if missed < license.MaxMissedPayments {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientMissedPayments, missed, license.MaxMissedPayments)
	}
	return r.revoke(license, RevocationMissedPayments, fmt.Sprintf("missed %d payments", missed))
}

// RevokeByArbitrator revokes a license as the outcome of a dispute.
func (r *Registry) RevokeByArbitrator(caller ethcommon.Address, licenseID uint64, reason string) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if r.policy == nil {
		return errNilPolicy
	}
	if err := r.policy.Require(access.RoleArbitrator, caller); err != nil {
		return err
	}
	license, err := r.License(licenseID)
	if err != nil {
		return err
	}
	if license.Revoked() {
		return fmt.Errorf("%w: %d", ErrAlreadyRevoked, licenseID)
	}
	return r.revoke(license, RevocationDispute, strings.TrimSpace(reason))
}

func (r *Registry) revoke(license *License, reason RevocationReason, note string) error {
	license.Revocation = reason
	license.RevocationNote = note
	license.RevokedAt = r.now()
	if err := r.state.LicensingLicensePut(license); err != nil {
		return err
	}
	r.emit(LicenseRevokedEvent(license))
	return nil
}
