package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/state"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/storage"
)

// Marketplace is the settlement orchestrator. Every public mutation runs as a
// single atomic transition: it executes against a write-back cache over the
// store, commits on success and discards everything on failure. Mutations
// are serialised by one mutex and events are published only after commit.
//
// Emitters are invoked with the marketplace lock held and must not call back
// into the marketplace. Value sinks are invoked without it.
type Marketplace struct {
	mu       sync.Mutex
	db       storage.Database
	inFlight map[ethcommon.Address]struct{}

	emitter events.Emitter
	sink    ValueSink
	clock   func() time.Time
	logger  *slog.Logger
	metrics *observability.SettlementMetrics
	tracer  trace.Tracer
}

// Option configures a Marketplace.
type Option func(*Marketplace)

// WithClock overrides the wall clock. Each call reads it once.
func WithClock(clock func() time.Time) Option {
	return func(m *Marketplace) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithEmitter installs the emitter receiving committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(m *Marketplace) {
		if emitter != nil {
			m.emitter = emitter
		}
	}
}

// WithSink installs the sink used for withdrawals and refunds.
func WithSink(sink ValueSink) Option {
	return func(m *Marketplace) {
		m.sink = sink
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Marketplace) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics installs the settlement collectors.
func WithMetrics(metrics *observability.SettlementMetrics) Option {
	return func(m *Marketplace) {
		m.metrics = metrics
	}
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Marketplace) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// New constructs a marketplace over the supplied database.
func New(db storage.Database, opts ...Option) (*Marketplace, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	m := &Marketplace{
		db:       db,
		inFlight: make(map[ethcommon.Address]struct{}),
		emitter:  events.NoopEmitter{},
		clock:    time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer("softlaw/marketplace"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// call bundles the engines of a single atomic transition. All of them share
// the cache, the event buffer and the timestamp snapshotted at entry.
type call struct {
	now       int64
	cache     *storage.CacheDB
	state     *state.Manager
	buf       *events.Buffer
	policy    *access.Policy
	registry  *licensing.Registry
	revenue   *revenue.Engine
	recurring *recurring.Engine

	distributions []*revenue.Distribution
}

func (m *Marketplace) newCall() *call {
	now := m.clock().Unix()
	nowFn := func() int64 { return now }
	cache := storage.NewCacheDB(m.db)
	mgr := state.NewManager(cache)
	buf := &events.Buffer{}

	policy := access.NewPolicy(mgr)
	policy.SetEmitter(buf)

	registry := licensing.NewRegistry()
	registry.SetState(mgr)
	registry.SetPolicy(policy)
	registry.SetEmitter(buf)
	registry.SetNowFunc(nowFn)

	rev := revenue.NewEngine()
	rev.SetState(mgr)
	rev.SetPolicy(policy)
	rev.SetAssetOracle(registry)
	rev.SetEmitter(buf)
	rev.SetNowFunc(nowFn)

	c := &call{
		now:      now,
		cache:    cache,
		state:    mgr,
		buf:      buf,
		policy:   policy,
		registry: registry,
		revenue:  rev,
	}

	rec := recurring.NewEngine()
	rec.SetState(mgr)
	rec.SetLicenseOracle(registry)
	rec.SetDistributor(c)
	rec.SetPolicy(policy)
	rec.SetEmitter(buf)
	rec.SetNowFunc(nowFn)
	c.recurring = rec
	return c
}

func (c *call) guard() error {
	return c.policy.CheckNotPaused()
}

func (c *call) emit(evt *types.Event) {
	c.buf.Emit(WrapEvent(evt))
}

// DistributeRecurring forwards an accepted recurring payment into the revenue
// engine with the current asset owner as seller.
func (c *call) DistributeRecurring(licenseID, assetID uint64, amount *big.Int) error {
	owner, err := c.registry.OwnerOf(assetID)
	if err != nil {
		return fmt.Errorf("license %d: %w", licenseID, err)
	}
	_, err = c.distribute(assetID, amount, owner, amount)
	return err
}

func (c *call) distribute(assetID uint64, amount *big.Int, seller ethcommon.Address, attached *big.Int) (*revenue.Distribution, error) {
	dist, err := c.revenue.DistributePayment(assetID, amount, seller, attached)
	if err != nil {
		return nil, err
	}
	c.distributions = append(c.distributions, dist)
	return dist, nil
}

// exec runs fn as one atomic transition and publishes its events on commit.
func (m *Marketplace) exec(ctx context.Context, op string, fn func(c *call) error) error {
	_, err := m.run(ctx, op, false, fn)
	return err
}

// run executes fn under the marketplace lock. The cache is committed when fn
// succeeds or fails with a terminal revocation, and discarded otherwise. With
// hold set the committed events are returned instead of being published.
func (m *Marketplace) run(ctx context.Context, op string, hold bool, fn func(c *call) error) (*events.Buffer, error) {
	_, span := m.tracer.Start(ctx, "marketplace."+op)
	defer span.End()
	start := time.Now()

	m.mu.Lock()
	c := m.newCall()
	span.SetAttributes(attribute.Int64("marketplace.now", c.now))
	err := fn(c)
	committed := false
	if err == nil || errors.Is(err, recurring.ErrLicenseRevokedForMissedPayments) {
		if werr := c.cache.Write(); werr != nil {
			err = fmt.Errorf("marketplace: commit %s: %w", op, werr)
		} else {
			committed = true
		}
	} else {
		c.cache.Discard()
	}
	if committed && !hold {
		c.buf.Flush(m.emitter)
	}
	m.mu.Unlock()

	if committed {
		for _, dist := range c.distributions {
			m.metrics.RecordDistribution(dist.Sale.String(), dist.Amount)
		}
	}
	kind := Kind(err)
	m.metrics.Observe(op, time.Since(start), string(kind))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch kind {
		case KindTerminal:
			if committed {
				m.metrics.RecordRevocation()
			}
			m.logger.Warn("marketplace: license revoked", "op", op, "error", err)
		case KindInternal:
			m.logger.Error("marketplace: operation failed", "op", op, "error", err)
		default:
			m.logger.Debug("marketplace: operation rejected", "op", op, "kind", string(kind), "error", err)
		}
	} else {
		span.SetStatus(codes.Ok, op)
	}
	if !committed {
		return nil, err
	}
	return c.buf, err
}

// view runs a read-only fn against a throwaway cache.
func (m *Marketplace) view(fn func(c *call) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.newCall()
	defer c.cache.Discard()
	return fn(c)
}

// Genesis is the initial marketplace configuration.
type Genesis struct {
	Admin             ethcommon.Address
	Treasury          ethcommon.Address
	Distributor       ethcommon.Address
	PlatformFeeBps    uint32
	DefaultRoyaltyBps uint32
	LedgerPenaltyBps  uint32
	PenaltyRateBps    uint32
	Configurators     []ethcommon.Address
	Arbitrators       []ethcommon.Address
}

// Init applies the genesis configuration. It is a no-op on a store that has
// already been initialised.
func (m *Marketplace) Init(ctx context.Context, genesis Genesis) error {
	return m.exec(ctx, "init", func(c *call) error {
		if _, err := c.revenue.Params(); err == nil {
			return nil
		}
		if err := c.policy.Bootstrap(genesis.Admin); err != nil {
			return err
		}
		distributor := genesis.Distributor
		if distributor == (ethcommon.Address{}) {
			distributor = genesis.Treasury
		}
		if err := c.revenue.InitParams(revenue.Params{
			Treasury:          genesis.Treasury,
			Distributor:       distributor,
			PlatformFeeBps:    genesis.PlatformFeeBps,
			DefaultRoyaltyBps: genesis.DefaultRoyaltyBps,
			LedgerPenaltyBps:  genesis.LedgerPenaltyBps,
		}); err != nil {
			return err
		}
		rate := genesis.PenaltyRateBps
		if rate == 0 {
			rate = recurring.DefaultPenaltyRateBps
		}
		if err := c.recurring.InitParams(recurring.Params{PenaltyRateBps: rate}); err != nil {
			return err
		}
		for _, account := range genesis.Configurators {
			if err := c.policy.Grant(genesis.Admin, access.RoleConfigurator, account); err != nil {
				return err
			}
		}
		for _, account := range genesis.Arbitrators {
			if err := c.policy.Grant(genesis.Admin, access.RoleArbitrator, account); err != nil {
				return err
			}
		}
		return nil
	})
}

// Initialised reports whether genesis has been applied.
func (m *Marketplace) Initialised() bool {
	var ok bool
	_ = m.view(func(c *call) error {
		_, err := c.revenue.Params()
		ok = err == nil
		return nil
	})
	return ok
}

// refund pushes value back to an account. When the sink is missing or fails
// the amount is credited to the ledger so it can be withdrawn later.
func (m *Marketplace) refund(ctx context.Context, t Transfer) {
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return
	}
	reason := "no value sink configured"
	if m.sink != nil {
		err := m.sink.Send(ctx, t)
		if err == nil {
			m.metrics.RecordRefund(t.Amount)
			return
		}
		reason = err.Error()
		m.metrics.RecordSinkFailure(t.Purpose)
		m.logger.Warn("marketplace: refund transfer failed, crediting ledger",
			"transfer", t.ID, "account", t.To.Hex(), "amount", t.Amount.String(), "error", err)
	}
	if err := m.creditTransfer(ctx, "refund.credit", t, reason, nil); err != nil {
		m.logger.Error("marketplace: refund credit failed",
			"transfer", t.ID, "account", t.To.Hex(), "amount", t.Amount.String(), "error", err)
	}
}

// ReturnTransfer credits a transfer the external payer could not execute back
// to the recipient's ledger balance. Admin only.
func (m *Marketplace) ReturnTransfer(ctx context.Context, caller ethcommon.Address, t Transfer, reason string) error {
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return ErrInvalidPrice
	}
	return m.creditTransfer(ctx, "return_transfer", t, reason, func(c *call) error {
		return c.policy.Require(access.RoleAdmin, caller)
	})
}

func (m *Marketplace) creditTransfer(ctx context.Context, op string, t Transfer, reason string, check func(c *call) error) error {
	return m.exec(ctx, op, func(c *call) error {
		if check != nil {
			if err := check(c); err != nil {
				return err
			}
		}
		if err := c.revenue.Credit(t.To, t.Amount); err != nil {
			return err
		}
		c.emit(RefundCreditedEvent(t, reason))
		return nil
	})
}
