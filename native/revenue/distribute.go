package revenue

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/fees"
)

// Classify decides the sale type of a payment against a split. A seller that
// appears anywhere in the recipients makes it a primary sale.
func Classify(split *Split, seller ethcommon.Address, royaltyBps uint32) SaleType {
	if split.Contains(seller) {
		return Primary()
	}
	return Secondary(royaltyBps)
}

// DistributePayment splits amount between the treasury, the split recipients
// and the seller. attached is the value carried by the call and must equal
// amount. Crediting is bookkeeping only; nothing is transferred out here.
func (e *Engine) DistributePayment(assetID uint64, amount *big.Int, seller ethcommon.Address, attached *big.Int) (*Distribution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if attached == nil || attached.Cmp(amount) != 0 {
		return nil, fmt.Errorf("%w: attached %s, amount %s", ErrIncorrectPaymentAmount, newBigInt(attached), amount)
	}
	if seller == (ethcommon.Address{}) {
		return nil, fmt.Errorf("%w: zero seller", ErrInvalidRecipient)
	}
	params, err := e.Params()
	if err != nil {
		return nil, err
	}

	applied := fees.Apply(fees.ApplyInput{Gross: amount, FeeBps: params.PlatformFeeBps, RouteWallet: params.Treasury})
	dist := &Distribution{
		AssetID:        assetID,
		Amount:         new(big.Int).Set(amount),
		Seller:         seller,
		PlatformFee:    applied.Fee,
		Royalty:        big.NewInt(0),
		SellerProceeds: big.NewInt(0),
		Dust:           big.NewInt(0),
	}
	remaining := applied.Net

	// Resolve everything that can fail before the first credit.
	split, ok, err := e.state.RevenueSplitGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || split == nil {
		if e.oracle == nil {
			return nil, errNilOracle
		}
		owner, err := e.oracle.OwnerOf(assetID)
		if err != nil {
			return nil, err
		}
		if err := e.credit(dist, applied.RouteWallet, applied.Fee); err != nil {
			return nil, err
		}
		dist.Sale = SaleType{Kind: SaleUnsplit}
		if err := e.credit(dist, owner, remaining); err != nil {
			return nil, err
		}
		e.emit(PaymentDistributedEvent(dist))
		return dist, nil
	}

	royaltyBps, err := e.RoyaltyBps(assetID)
	if err != nil {
		return nil, err
	}
	if err := e.credit(dist, applied.RouteWallet, applied.Fee); err != nil {
		return nil, err
	}
	dist.Sale = Classify(split, seller, royaltyBps)
	pool := remaining
	if dist.Sale.Kind == SaleSecondary {
		dist.Royalty = ShareOf(remaining, dist.Sale.RoyaltyBps)
		pool = dist.Royalty
		dist.SellerProceeds = new(big.Int).Sub(remaining, dist.Royalty)
	}
	distributed := big.NewInt(0)
	for i, recipient := range split.Recipients {
		share := ShareOf(pool, split.Shares[i])
		if err := e.credit(dist, recipient, share); err != nil {
			return nil, err
		}
		distributed.Add(distributed, share)
	}
	if dist.SellerProceeds.Sign() > 0 {
		if err := e.credit(dist, seller, dist.SellerProceeds); err != nil {
			return nil, err
		}
	}
	dist.Dust = new(big.Int).Sub(pool, distributed)
	if dist.Dust.Sign() > 0 {
		total, err := e.state.RevenueDustGet()
		if err != nil {
			return nil, err
		}
		if err := e.state.RevenueDustPut(new(big.Int).Add(newBigInt(total), dist.Dust)); err != nil {
			return nil, err
		}
	}
	e.emit(PaymentDistributedEvent(dist))
	return dist, nil
}

func (e *Engine) credit(dist *Distribution, account ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.Credit(account, amount); err != nil {
		return err
	}
	dist.Credits = append(dist.Credits, Credit{Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// Dust returns the cumulative truncation remainder left undistributed.
func (e *Engine) Dust() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	total, err := e.state.RevenueDustGet()
	if err != nil {
		return nil, err
	}
	return newBigInt(total), nil
}
