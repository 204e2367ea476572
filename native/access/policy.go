package access

import (
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/common"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/params"
)

const (
	// RoleAdmin administers roles, rates and the pause toggle.
	RoleAdmin = "admin"
	// RoleConfigurator may configure revenue splits.
	RoleConfigurator = "configurator"
	// RoleArbitrator may revoke licenses as the outcome of a dispute.
	RoleArbitrator = "arbitrator"
)

var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("access: unauthorized")
	errNilState     = errors.New("access: state not configured")
	errZeroAccount  = errors.New("access: account must not be the zero address")
	errUnknownRole  = errors.New("access: unknown role")
)

type policyState interface {
	params.StoreState
	HasRole(role string, addr []byte) bool
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
}

// Policy is the explicit authorization capability held by every settlement
// component. It answers role checks and owns the global pause toggle.
type Policy struct {
	state   policyState
	pauses  *params.Store
	emitter events.Emitter
}

// NewPolicy binds a policy to the supplied state backend.
func NewPolicy(state policyState) *Policy {
	return &Policy{state: state, pauses: params.NewStore(state), emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the policy.
func (p *Policy) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

func (p *Policy) emit(evt *types.Event) {
	if p == nil || evt == nil || p.emitter == nil {
		return
	}
	p.emitter.Emit(WrapEvent(evt))
}

// HasRole reports whether the account holds the role.
func (p *Policy) HasRole(role string, account ethcommon.Address) bool {
	if p == nil || p.state == nil {
		return false
	}
	return p.state.HasRole(role, account.Bytes())
}

// Require returns ErrUnauthorized unless the caller holds the role.
func (p *Policy) Require(role string, caller ethcommon.Address) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if !p.HasRole(role, caller) {
		return fmt.Errorf("%w: %s is not %s", ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}

// Bootstrap installs the initial admin without a caller check. Only genesis
// initialisation should call it.
func (p *Policy) Bootstrap(admin ethcommon.Address) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if admin == (ethcommon.Address{}) {
		return errZeroAccount
	}
	if err := p.state.SetRole(RoleAdmin, admin.Bytes()); err != nil {
		return err
	}
	p.emit(RoleGrantedEvent(RoleAdmin, admin, admin))
	return nil
}

// Grant assigns role to account. The caller must be an admin.
func (p *Policy) Grant(caller ethcommon.Address, role string, account ethcommon.Address) error {
	role, err := p.checkChange(caller, role, account)
	if err != nil {
		return err
	}
	if err := p.state.SetRole(role, account.Bytes()); err != nil {
		return err
	}
	p.emit(RoleGrantedEvent(role, account, caller))
	return nil
}

// Revoke removes role from account. The caller must be an admin.
func (p *Policy) Revoke(caller ethcommon.Address, role string, account ethcommon.Address) error {
	role, err := p.checkChange(caller, role, account)
	if err != nil {
		return err
	}
	if err := p.state.RemoveRole(role, account.Bytes()); err != nil {
		return err
	}
	p.emit(RoleRevokedEvent(role, account, caller))
	return nil
}

func (p *Policy) checkChange(caller ethcommon.Address, role string, account ethcommon.Address) (string, error) {
	if err := p.Require(RoleAdmin, caller); err != nil {
		return "", err
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleAdmin, RoleConfigurator, RoleArbitrator:
	default:
		return "", fmt.Errorf("%w: %q", errUnknownRole, role)
	}
	if account == (ethcommon.Address{}) {
		return "", errZeroAccount
	}
	return role, nil
}

// IsPaused implements common.PauseView.
func (p *Policy) IsPaused(module string) bool {
	if p == nil || p.pauses == nil {
		return false
	}
	return p.pauses.IsPaused(module)
}

// Paused reports whether marketplace mutations are blocked.
func (p *Policy) Paused() bool {
	return p.IsPaused(params.ModuleMarketplace)
}

// CheckNotPaused returns common.ErrModulePaused while the marketplace is
// paused.
func (p *Policy) CheckNotPaused() error {
	return common.Guard(p, params.ModuleMarketplace)
}

// SetPaused flips the marketplace pause toggle. The caller must be an admin.
func (p *Policy) SetPaused(caller ethcommon.Address, paused bool) error {
	if err := p.Require(RoleAdmin, caller); err != nil {
		return err
	}
	if err := p.pauses.SetPaused(params.ModuleMarketplace, paused); err != nil {
		return err
	}
	p.emit(PauseToggledEvent(params.ModuleMarketplace, paused, caller))
	return nil
}
