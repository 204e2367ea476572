package revenue

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

type engineState interface {
	RevenueParamsGet() (*Params, bool, error)
	RevenueParamsPut(params *Params) error
	RevenueBalanceGet(account ethcommon.Address) (*Balance, bool, error)
	RevenueBalancePut(balance *Balance) error
	RevenueSplitGet(assetID uint64) (*Split, bool, error)
	RevenueSplitPut(split *Split) error
	RevenueAssetRoyaltyGet(assetID uint64) (uint32, bool, error)
	RevenueAssetRoyaltyPut(assetID uint64, bps uint32) error
	RevenueAssetRoyaltyDelete(assetID uint64) error
	RevenueDustGet() (*big.Int, error)
	RevenueDustPut(total *big.Int) error
}

// Engine implements the balance ledger, split registry, royalty table and
// payment distribution on top of the persisted revenue state.
type Engine struct {
	state   engineState
	policy  Authorizer
	oracle  AssetOracle
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a revenue engine with default dependencies.
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

// SetPolicy configures the role check used for configuration changes.
func (e *Engine) SetPolicy(policy Authorizer) { e.policy = policy }

// SetAssetOracle configures the ownership registry used by the no-split path.
func (e *Engine) SetAssetOracle(oracle AssetOracle) { e.oracle = oracle }

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

func (e *Engine) requireRole(role string, caller ethcommon.Address) error {
	if e.policy == nil {
		return errNilPolicy
	}
	return e.policy.Require(role, caller)
}

// InitParams installs the genesis parameters.
func (e *Engine) InitParams(params Params) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := params.Validate(); err != nil {
		return err
	}
	return e.state.RevenueParamsPut(&params)
}

// Params returns the current parameters.
func (e *Engine) Params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, ok, err := e.state.RevenueParamsGet()
	if err != nil {
		return nil, err
	}
	if !ok || params == nil {
		return nil, errParamsNotSet
	}
	return params, nil
}
