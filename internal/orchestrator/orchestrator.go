// Package orchestrator drives the signaling connection lifecycle: connect,
// authenticate, register, stay connected, and recover with bounded
// exponential backoff.
//
// An Orchestrator is single-threaded. Start, Disconnect, Tick, Send and the
// accessors must all be called from the same goroutine, normally the
// embedding application's update loop. Background work (transport I/O, the
// credential exchange, peer link sends) only ever enqueues results that the
// next Tick applies.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/identity"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/retry"
	"github.com/mossy-p/bridge-signaling/internal/roomcode"
	"github.com/mossy-p/bridge-signaling/internal/scheduler"
	"github.com/mossy-p/bridge-signaling/internal/session"
	"github.com/mossy-p/bridge-signaling/internal/transport"
)

const defaultAuthTimeout = 10 * time.Second

// Authenticator exchanges the configured auth key for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, req models.AuthRequest) (models.AuthResponse, error)
}

type Options struct {
	Config     config.Connection
	Identity   identity.ClientIdentity
	Transports transport.Factory

	// Authenticator is required when Config.RequireAuthentication is set.
	Authenticator Authenticator
	AuthTimeout   time.Duration

	Peer    PeerCoordinator
	Handler Handler

	// Role defaults to DefaultRole(Identity.Type).
	Role Role

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

type Orchestrator struct {
	cfg         config.Connection
	id          identity.ClientIdentity
	role        Role
	roomID      string
	transports  transport.Factory
	auth        Authenticator
	authTimeout time.Duration
	peer        PeerCoordinator
	handler     Handler
	logger      logrus.FieldLogger
	log         *logrus.Entry

	sched   *scheduler.Scheduler
	counter *retry.Counter

	state        State
	epoch        uint64
	sess         *session.Session
	unsubscribe  func()
	registerSent bool
	regTimeout   *scheduler.Task
	retryTask    *scheduler.Task
	cancelAuth   context.CancelFunc
	peerLink     *link
	// lastErr is the transport error seen during the current attempt.
	lastErr error

	inboxMu sync.Mutex
	inbox   []func()
}

func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Identity.PeerID == "" {
		return nil, errors.New("orchestrator: client identity is required")
	}
	if opts.Identity.Type != cfg.ClientType {
		return nil, fmt.Errorf("orchestrator: identity type %q does not match client type %q", opts.Identity.Type, cfg.ClientType)
	}
	if opts.Transports == nil {
		return nil, errors.New("orchestrator: transport factory is required")
	}
	if cfg.RequireAuthentication && opts.Authenticator == nil {
		return nil, errors.New("orchestrator: authentication required but no authenticator given")
	}

	roomID := cfg.RoomID
	if roomID == "" {
		code, err := roomcode.Generate()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: generate room id: %w", err)
		}
		roomID = code
	}

	role := opts.Role
	if role == "" {
		role = DefaultRole(opts.Identity.Type)
	}
	if role != RoleInitiator && role != RoleResponder {
		return nil, fmt.Errorf("orchestrator: unknown role %q", role)
	}

	handler := opts.Handler
	if handler == nil {
		handler = BaseHandler{}
	}
	authTimeout := opts.AuthTimeout
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Orchestrator{
		cfg:         cfg,
		id:          opts.Identity,
		role:        role,
		roomID:      roomID,
		transports:  opts.Transports,
		auth:        opts.Authenticator,
		authTimeout: authTimeout,
		peer:        opts.Peer,
		handler:     handler,
		logger:      logger,
		log: logging.Component(logger, "orchestrator").WithFields(logrus.Fields{
			"peer_id": opts.Identity.PeerID,
			"room_id": roomID,
			"role":    role,
		}),
		sched:   scheduler.New(opts.Clock),
		counter: retry.NewCounter(retry.Policy{Base: cfg.BackoffBase, MaxAttempts: cfg.Retries()}),
	}, nil
}

func (o *Orchestrator) State() State                      { return o.state }
func (o *Orchestrator) Role() Role                        { return o.role }
func (o *Orchestrator) Identity() identity.ClientIdentity { return o.id }
func (o *Orchestrator) RoomID() string                    { return o.roomID }

// Attempts returns the number of failures since the last successful
// registration.
func (o *Orchestrator) Attempts() int { return o.counter.Attempts() }

// Start begins a connection sequence from Idle or Failed.
func (o *Orchestrator) Start() error {
	switch o.state {
	case StateIdle, StateFailed:
	default:
		return fmt.Errorf("%w (state %s)", ErrBusy, o.state)
	}
	o.counter.Reset()
	o.log.WithField("server", o.cfg.ServerURL).Info("starting signaling connection")
	o.beginAttempt()
	return nil
}

// Disconnect stops everything and returns to Idle. Pending retries and the
// registration timeout are cancelled and no event from the old session is
// delivered afterwards.
func (o *Orchestrator) Disconnect() {
	o.sched.CancelAll()
	o.retryTask = nil
	o.regTimeout = nil
	o.teardown()

	o.inboxMu.Lock()
	o.inbox = nil
	o.inboxMu.Unlock()

	if o.state != StateIdle {
		o.log.Info("disconnected")
		o.setState(StateIdle)
	}
}

// Tick applies queued async results, pumps the live session and fires due
// timers.
func (o *Orchestrator) Tick() {
	o.drainInbox()
	if o.sess != nil {
		o.sess.Pump()
	}
	o.sched.RunDue()
}

// Send forwards an application message while connected.
func (o *Orchestrator) Send(msg models.Message) error {
	if o.state != StateConnected || o.sess == nil {
		return session.ErrNotConnected
	}
	if msg != nil && !o.role.permits(msg.Type()) {
		return fmt.Errorf("%w: %s may not send %s", ErrRoleViolation, o.role, msg.Type())
	}
	return o.sess.Send(msg)
}

func (o *Orchestrator) post(fn func()) {
	o.inboxMu.Lock()
	o.inbox = append(o.inbox, fn)
	o.inboxMu.Unlock()
}

func (o *Orchestrator) drainInbox() {
	o.inboxMu.Lock()
	pending := o.inbox
	o.inbox = nil
	o.inboxMu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// current reports whether the attempt tagged epoch is still live. Handler
// callbacks may call Disconnect or Start, so every step after one rechecks.
func (o *Orchestrator) current(epoch uint64) bool {
	return epoch == o.epoch && o.state != StateIdle
}

func (o *Orchestrator) setState(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	o.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("state change")
	o.handler.OnStateChange(from, to)
}

// beginAttempt replaces any previous session with a fresh one and starts
// connecting it.
func (o *Orchestrator) beginAttempt() {
	o.retryTask = nil
	o.teardown()

	epoch := o.epoch
	s := session.New(o.transports(), o.logger)
	o.unsubscribe = s.Subscribe(session.ObserverFuncs{
		Connected:    func() { o.onConnected(epoch) },
		Message:      func(msg models.Message) { o.onMessage(epoch, msg) },
		Error:        func(err error) { o.onTransportError(epoch, err) },
		Disconnected: func(code int, err error) { o.onDisconnected(epoch, code, err) },
	})
	o.sess = s
	o.registerSent = false
	o.lastErr = nil
	o.setState(StateConnecting)
	if !o.current(epoch) {
		return
	}

	if err := s.Connect(o.cfg.ServerURL); err != nil {
		o.fail(err)
	}
}

// teardown closes the live session and invalidates everything tied to it.
// The epoch bump makes late completions from the old attempt no-ops.
func (o *Orchestrator) teardown() {
	o.epoch++
	if o.cancelAuth != nil {
		o.cancelAuth()
		o.cancelAuth = nil
	}
	if o.regTimeout != nil {
		o.regTimeout.Cancel()
		o.regTimeout = nil
	}
	o.detachPeer()
	if o.sess != nil {
		o.unsubscribe()
		o.sess.Close()
		o.sess = nil
		o.unsubscribe = nil
	}
}

// fail ends the current attempt and either schedules the next one or gives
// up.
func (o *Orchestrator) fail(cause error) {
	o.teardown()
	epoch := o.epoch

	attempt, delay, ok := o.counter.Next()
	if !ok {
		err := fmt.Errorf("%w after %d failed attempts: %w", ErrRetryExhausted, attempt, cause)
		o.log.WithError(err).Error("giving up on signaling connection")
		o.setState(StateFailed)
		if epoch == o.epoch && o.state == StateFailed {
			o.handler.OnFailed(err)
		}
		return
	}

	o.log.WithError(cause).WithFields(logrus.Fields{
		"attempt": attempt,
		"delay":   delay,
	}).Warn("signaling attempt failed, retrying")
	o.setState(StateReconnecting)
	if !o.current(epoch) {
		return
	}
	o.retryTask = o.sched.After(delay, "reconnect", o.beginAttempt)
}

func (o *Orchestrator) onConnected(epoch uint64) {
	if epoch != o.epoch || o.state != StateConnecting {
		return
	}
	if !o.cfg.RequireAuthentication {
		o.register("")
		return
	}

	o.setState(StateAuthenticating)
	if !o.current(epoch) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.authTimeout)
	o.cancelAuth = cancel
	req := models.AuthRequest{PeerID: o.id.PeerID, ClientType: o.id.Type, AuthKey: o.cfg.AuthKey}
	auth := o.auth
	go func() {
		resp, err := auth.Authenticate(ctx, req)
		o.post(func() { o.onAuthenticated(epoch, resp, err) })
	}()
}

func (o *Orchestrator) onAuthenticated(epoch uint64, resp models.AuthResponse, err error) {
	if epoch != o.epoch || o.state != StateAuthenticating {
		return
	}
	if o.cancelAuth != nil {
		o.cancelAuth()
		o.cancelAuth = nil
	}
	if err != nil {
		o.fail(fmt.Errorf("%w: %w", ErrAuthenticationFailure, err))
		return
	}
	o.register(resp.Token)
}

// register sends the single Register message of this attempt and arms the
// registration timeout.
func (o *Orchestrator) register(token string) {
	if o.registerSent {
		return
	}
	o.registerSent = true
	epoch := o.epoch
	o.setState(StateRegistering)
	if !o.current(epoch) {
		return
	}

	msg := models.Register{
		PeerID:     o.id.PeerID,
		ClientType: o.id.Type,
		RoomID:     o.roomID,
		Token:      token,
	}
	if err := o.sess.Send(msg); err != nil {
		o.fail(err)
		return
	}

	o.regTimeout = o.sched.After(o.cfg.RegistrationTimeout, "registration-timeout", func() {
		if epoch == o.epoch && o.state == StateRegistering {
			o.regTimeout = nil
			o.fail(ErrRegistrationTimeout)
		}
	})
}

func (o *Orchestrator) onMessage(epoch uint64, msg models.Message) {
	if epoch != o.epoch {
		return
	}

	switch m := msg.(type) {
	case models.Registered:
		if o.state != StateRegistering {
			o.log.WithField("state", o.state).Warn("unexpected registered message")
			return
		}
		if o.regTimeout != nil {
			o.regTimeout.Cancel()
			o.regTimeout = nil
		}
		o.counter.Reset()
		o.log.Info("registered with signaling server")
		o.setState(StateConnected)
		if o.current(epoch) {
			o.attachPeer()
		}

	case models.JoinedRoom:
		o.log.WithField("peer_role", m.Role).Info("joined room")
		o.handler.OnJoinedRoom(m)

	case models.PeerJoined:
		o.log.WithField("remote_peer", m.PeerID).Info("peer joined")
		o.handler.OnPeerJoined(m)
		if o.current(epoch) {
			o.signalPeer(m)
		}

	case models.HostDisconnected:
		o.log.Info("host disconnected")
		o.handler.OnHostDisconnected()
		if !o.current(epoch) {
			return
		}
		o.signalPeer(m)
		if o.cfg.TeardownOnHostDisconnect {
			o.Disconnect()
		}

	case models.Error:
		o.log.WithFields(logrus.Fields{"error": m.Error, "context": m.Context}).Warn("server error")
		o.handler.OnServerError(m)
		if o.current(epoch) && o.state == StateRegistering && m.Context == string(models.TypeRegister) {
			o.fail(fmt.Errorf("%w: %s", ErrRegistrationRejected, m.Error))
		}

	case models.Offer, models.Answer, models.IceCandidate:
		if o.state != StateConnected {
			o.log.WithField("type", m.Type()).Debug("negotiation message before registration dropped")
			return
		}
		if m.Type() == models.TypeOffer && o.role == RoleInitiator {
			o.log.WithError(ErrRoleViolation).Warn("initiator received an offer, dropped")
			return
		}
		o.signalPeer(m)

	case models.Touch, models.Haptic:
		if o.state != StateConnected {
			o.log.WithField("type", m.Type()).Debug("input message before registration dropped")
			return
		}
		o.handler.OnMessage(m)

	case models.Unknown:
		if m.Malformed {
			// Already logged by the session.
			return
		}
		o.log.WithField("type", m.Discriminator).Debug("unknown message type")
		if o.state == StateConnected {
			o.handler.OnMessage(m)
		}

	default:
		o.log.WithField("type", msg.Type()).Warn("unexpected message from server")
	}
}

func (o *Orchestrator) onTransportError(epoch uint64, err error) {
	if epoch != o.epoch {
		return
	}
	o.lastErr = err
	o.log.WithError(err).Debug("transport error")
}

func (o *Orchestrator) onDisconnected(epoch uint64, code int, err error) {
	if epoch != o.epoch {
		return
	}
	switch o.state {
	case StateConnecting, StateAuthenticating, StateRegistering, StateConnected:
	default:
		return
	}

	cause := o.lastErr
	if cause == nil {
		if err == nil {
			err = fmt.Errorf("connection closed (code %d)", code)
		}
		cause = &session.TransportError{Op: "read", URL: o.cfg.ServerURL, Err: err}
	}
	o.fail(cause)
}

func (o *Orchestrator) attachPeer() {
	if o.peer == nil {
		return
	}
	o.peerLink = &link{o: o, role: o.role, epoch: o.epoch}
	o.peer.Attach(o.peerLink)
}

func (o *Orchestrator) detachPeer() {
	if o.peerLink == nil {
		return
	}
	o.peerLink.closed.Store(true)
	o.peerLink = nil
	o.peer.Detach()
}

func (o *Orchestrator) signalPeer(msg models.Message) {
	if o.peerLink != nil {
		o.peer.HandleSignal(msg)
	}
}
