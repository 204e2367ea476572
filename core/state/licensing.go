package state

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
)

type storedAsset struct {
	Owner     ethcommon.Address
	URI       string
	CreatedAt uint64
}

type storedLicense struct {
	AssetID           uint64
	Issuer            ethcommon.Address
	Holder            ethcommon.Address
	URI               string
	PaymentInterval   uint64
	MaxMissedPayments uint64
	PenaltyRateBps    uint64
	IssuedAt          uint64
	ExpiresAt         uint64
	RevokedAt         uint64
	Revocation        uint64
	RevocationNote    string
}

// LicensingAssetGet loads an asset record.
func (m *Manager) LicensingAssetGet(assetID uint64) (*licensing.Asset, bool, error) {
	var stored storedAsset
	ok, err := m.KVGet(LicensingAssetKey(assetID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &licensing.Asset{
		ID:        assetID,
		Owner:     stored.Owner,
		URI:       stored.URI,
		CreatedAt: toUnix(stored.CreatedAt),
	}, true, nil
}

// LicensingAssetPut persists an asset record.
func (m *Manager) LicensingAssetPut(asset *licensing.Asset) error {
	if asset == nil {
		return fmt.Errorf("asset must not be nil")
	}
	return m.KVPut(LicensingAssetKey(asset.ID), storedAsset{
		Owner:     asset.Owner,
		URI:       asset.URI,
		CreatedAt: fromUnix(asset.CreatedAt),
	})
}

// LicensingLicenseGet loads a license record.
func (m *Manager) LicensingLicenseGet(licenseID uint64) (*licensing.License, bool, error) {
	var stored storedLicense
	ok, err := m.KVGet(LicensingLicenseKey(licenseID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &licensing.License{
		ID:                licenseID,
		AssetID:           stored.AssetID,
		Issuer:            stored.Issuer,
		Holder:            stored.Holder,
		URI:               stored.URI,
		PaymentInterval:   stored.PaymentInterval,
		MaxMissedPayments: stored.MaxMissedPayments,
		PenaltyRateBps:    uint32(stored.PenaltyRateBps),
		IssuedAt:          toUnix(stored.IssuedAt),
		ExpiresAt:         toUnix(stored.ExpiresAt),
		RevokedAt:         toUnix(stored.RevokedAt),
		Revocation:        licensing.RevocationReason(stored.Revocation),
		RevocationNote:    stored.RevocationNote,
	}, true, nil
}

// LicensingLicensePut persists a license record.
func (m *Manager) LicensingLicensePut(license *licensing.License) error {
	if license == nil {
		return fmt.Errorf("license must not be nil")
	}
	return m.KVPut(LicensingLicenseKey(license.ID), storedLicense{
		AssetID:           license.AssetID,
		Issuer:            license.Issuer,
		Holder:            license.Holder,
		URI:               license.URI,
		PaymentInterval:   license.PaymentInterval,
		MaxMissedPayments: license.MaxMissedPayments,
		PenaltyRateBps:    uint64(license.PenaltyRateBps),
		IssuedAt:          fromUnix(license.IssuedAt),
		ExpiresAt:         fromUnix(license.ExpiresAt),
		RevokedAt:         fromUnix(license.RevokedAt),
		Revocation:        uint64(license.Revocation),
		RevocationNote:    license.RevocationNote,
	})
}
