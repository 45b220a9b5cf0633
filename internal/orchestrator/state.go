package orchestrator

import (
	"fmt"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateRegistering
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateRegistering:
		return "registering"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role decides which side proposes the peer session.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// DefaultRole is the role a client type takes when none is configured:
// hosts initiate and mobiles answer.
func DefaultRole(clientType string) Role {
	if clientType == models.ClientTypeHost {
		return RoleInitiator
	}
	return RoleResponder
}

// permits reports whether a peer with role r may send msgType.
func (r Role) permits(msgType models.MessageType) bool {
	return !(r == RoleResponder && msgType == models.TypeOffer)
}
