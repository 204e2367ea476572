package settlementd

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var errEmptyAmount = errors.New("amount required")

// parseAmount reads a base-10 wei amount bounded to 256 bits.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errEmptyAmount
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value.ToBig(), nil
}

// parseOptionalAmount treats an empty string as zero.
func parseOptionalAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return new(big.Int), nil
	}
	return parseAmount(raw)
}

func parseAddress(field, raw string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseID(field, raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid id %q", field, raw)
	}
	return id, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
