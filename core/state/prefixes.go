package state

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	revenueParamsKeyBytes  = []byte("revenue/params")
	revenueDustKeyBytes    = []byte("revenue/dust")
	revenueBalancePrefix   = []byte("revenue/balance/")
	revenueSplitPrefix     = []byte("revenue/split/")
	revenueRoyaltyPrefix   = []byte("revenue/royalty/")
	recurringParamsKey     = []byte("recurring/params")
	recurringStatePrefix   = []byte("recurring/license/")
	licensingAssetPrefix   = []byte("licensing/asset/")
	licensingLicensePrefix = []byte("licensing/license/")
)

func prefixed(prefix []byte, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func idKey(prefix []byte, id uint64) []byte {
	return prefixed(prefix, []byte(strconv.FormatUint(id, 10)))
}

// RevenueBalanceKey returns the storage key of an account balance.
func RevenueBalanceKey(account ethcommon.Address) []byte {
	return prefixed(revenueBalancePrefix, account.Bytes())
}

// RevenueSplitKey returns the storage key of an asset split.
func RevenueSplitKey(assetID uint64) []byte { return idKey(revenueSplitPrefix, assetID) }

// RevenueRoyaltyKey returns the storage key of an asset royalty override.
func RevenueRoyaltyKey(assetID uint64) []byte { return idKey(revenueRoyaltyPrefix, assetID) }

// RecurringStateKey returns the storage key of a license payment tracker.
func RecurringStateKey(licenseID uint64) []byte { return idKey(recurringStatePrefix, licenseID) }

// LicensingAssetKey returns the storage key of an asset record.
func LicensingAssetKey(assetID uint64) []byte { return idKey(licensingAssetPrefix, assetID) }

// LicensingLicenseKey returns the storage key of a license record.
func LicensingLicenseKey(licenseID uint64) []byte { return idKey(licensingLicensePrefix, licenseID) }
