package orchestrator

import "github.com/mossy-p/bridge-signaling/internal/models"

// Handler is the application surface. Every call happens on the goroutine
// driving Tick, Start or Disconnect.
type Handler interface {
	OnStateChange(from, to State)
	// OnMessage receives touch, haptic and unrecognised messages while
	// connected, exactly as decoded.
	OnMessage(msg models.Message)
	OnJoinedRoom(msg models.JoinedRoom)
	OnPeerJoined(msg models.PeerJoined)
	OnHostDisconnected()
	OnServerError(msg models.Error)
	// OnFailed is called once when retries are exhausted. err matches
	// ErrRetryExhausted.
	OnFailed(err error)
}

// BaseHandler implements Handler with no-ops for embedding.
type BaseHandler struct{}

func (BaseHandler) OnStateChange(from, to State)       {}
func (BaseHandler) OnMessage(msg models.Message)       {}
func (BaseHandler) OnJoinedRoom(msg models.JoinedRoom) {}
func (BaseHandler) OnPeerJoined(msg models.PeerJoined) {}
func (BaseHandler) OnHostDisconnected()                {}
func (BaseHandler) OnServerError(msg models.Error)     {}
func (BaseHandler) OnFailed(err error)                 {}
