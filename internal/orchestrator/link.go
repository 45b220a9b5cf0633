package orchestrator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

// PeerCoordinator runs the peer session once signaling is connected.
type PeerCoordinator interface {
	// Attach hands over the live signaling link after registration.
	Attach(link Link)
	// HandleSignal receives offer, answer, ice-candidate, peer-joined and
	// host-disconnected messages while attached.
	HandleSignal(msg models.Message)
	// Detach is called before the signaling session is torn down.
	Detach()
}

// Link is the narrow send surface given to the PeerCoordinator.
type Link interface {
	Role() Role
	// Send validates msg and queues it for the next tick. It is safe to
	// call from any goroutine.
	Send(msg models.Message) error
}

type link struct {
	o      *Orchestrator
	role   Role
	epoch  uint64
	closed atomic.Bool
}

func (l *link) Role() Role { return l.role }

func (l *link) Send(msg models.Message) error {
	if msg == nil {
		return errors.New("orchestrator: nil message")
	}
	if l.closed.Load() {
		return ErrLinkClosed
	}
	t := msg.Type()
	if !t.Relayed() {
		return fmt.Errorf("orchestrator: %q cannot be sent over the peer link", t)
	}
	if !l.role.permits(t) {
		return fmt.Errorf("%w: %s may not send %s", ErrRoleViolation, l.role, t)
	}

	l.o.post(func() {
		if l.closed.Load() || l.epoch != l.o.epoch || l.o.state != StateConnected {
			l.o.log.WithField("type", t).Debug("dropping peer message for a closed link")
			return
		}
		if err := l.o.sess.Send(msg); err != nil {
			l.o.log.WithError(err).WithField("type", t).Warn("peer message send failed")
		}
	})
	return nil
}
