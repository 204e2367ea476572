package access

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

const (
	// EventTypeRoleGranted is emitted when a role is assigned.
	EventTypeRoleGranted = "access.role.granted"
	// EventTypeRoleRevoked is emitted when a role is removed.
	EventTypeRoleRevoked = "access.role.revoked"
	// EventTypePauseToggled is emitted when a module pause toggle changes.
	EventTypePauseToggled = "access.pause.toggled"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// RoleGrantedEvent captures a role assignment.
func RoleGrantedEvent(role string, account, sender ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypeRoleGranted,
		Attributes: map[string]string{
			"role":    role,
			"account": account.Hex(),
			"sender":  sender.Hex(),
		},
	}
}

// RoleRevokedEvent captures a role removal.
func RoleRevokedEvent(role string, account, sender ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypeRoleRevoked,
		Attributes: map[string]string{
			"role":    role,
			"account": account.Hex(),
			"sender":  sender.Hex(),
		},
	}
}

// PauseToggledEvent captures a pause or unpause.
func PauseToggledEvent(module string, paused bool, sender ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypePauseToggled,
		Attributes: map[string]string{
			"module": module,
			"paused": strconv.FormatBool(paused),
			"sender": sender.Hex(),
		},
	}
}
