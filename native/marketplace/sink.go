package marketplace

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Transfer purposes.
const (
	PurposeWithdrawal  = "withdrawal"
	PurposeRefund      = "refund"
	PurposeOfferRefund = "offer_refund"
)

// Transfer is an outbound value movement requested by the marketplace. The ID
// is unique per request so sinks can deduplicate retries.
type Transfer struct {
	ID        string            `json:"id"`
	To        ethcommon.Address `json:"to"`
	Amount    *big.Int          `json:"amount"`
	Purpose   string            `json:"purpose"`
	Reference string            `json:"reference,omitempty"`
}

func newTransfer(to ethcommon.Address, amount *big.Int, purpose, reference string) Transfer {
	return Transfer{
		ID:        uuid.NewString(),
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Purpose:   purpose,
		Reference: reference,
	}
}

// ValueSink pushes value out of the marketplace. Send is always called
// without the marketplace lock held, so a sink may call back into the
// marketplace.
type ValueSink interface {
	Send(ctx context.Context, transfer Transfer) error
}

// SinkFunc adapts a function to the ValueSink interface.
type SinkFunc func(ctx context.Context, transfer Transfer) error

// Send implements ValueSink.
func (f SinkFunc) Send(ctx context.Context, transfer Transfer) error {
	if f == nil {
		return errSinkNotConfigured
	}
	return f(ctx, transfer)
}
