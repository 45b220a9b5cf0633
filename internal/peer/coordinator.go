// Package peer is the reference peer coordinator. It negotiates a WebRTC
// session over the signaling link and carries touch and haptic messages on
// a single data channel.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/orchestrator"
)

const (
	controlChannel       = "control"
	defaultGatherTimeout = 10 * time.Second
)

var ErrNoChannel = errors.New("peer: data channel not open")

type Options struct {
	ICEServers []webrtc.ICEServer
	// IncludeLoopback adds 127.0.0.1 candidates, needed when both ends run
	// on one machine.
	IncludeLoopback bool
	GatherTimeout   time.Duration

	// OnData receives messages arriving on the data channel. It runs on a
	// pion goroutine.
	OnData func(msg models.Message)
	// OnChannelOpen is called when the data channel becomes usable.
	OnChannelOpen func()
	OnState       func(state webrtc.PeerConnectionState)

	Logger logrus.FieldLogger
}

// Coordinator implements orchestrator.PeerCoordinator. An initiator offers
// once the remote peer joins; a responder only ever answers.
type Coordinator struct {
	opts Options
	api  *webrtc.API
	log  *logrus.Entry

	mu   sync.Mutex
	link orchestrator.Link
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	gen  uint64
	// cancel stops an in-flight gather.
	cancel context.CancelFunc
}

var _ orchestrator.PeerCoordinator = (*Coordinator)(nil)

func New(opts Options) *Coordinator {
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = defaultGatherTimeout
	}
	log := logging.Component(opts.Logger, "peer")
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{log: log}}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	return &Coordinator{
		opts: opts,
		api:  webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		log:  log,
	}
}

func (c *Coordinator) Attach(link orchestrator.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.link = link
	c.log.WithField("role", link.Role()).Debug("signaling link attached")
}

func (c *Coordinator) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.link = nil
	c.log.Debug("signaling link detached")
}

// HandleSignal never blocks; negotiation work runs in the background.
func (c *Coordinator) HandleSignal(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return
	}

	switch m := msg.(type) {
	case models.PeerJoined:
		if c.link.Role() == orchestrator.RoleInitiator {
			c.startOfferLocked()
		}

	case models.Offer:
		if c.link.Role() != orchestrator.RoleResponder {
			c.log.Warn("offer ignored by initiator")
			return
		}
		c.startAnswerLocked(m.SDP)

	case models.Answer:
		if c.pc == nil || c.link.Role() != orchestrator.RoleInitiator {
			c.log.Warn("answer without a pending offer")
			return
		}
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
			c.log.WithError(err).Warn("apply answer")
		}

	case models.IceCandidate:
		if c.pc == nil {
			return
		}
		init := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}
		if err := c.pc.AddICECandidate(init); err != nil {
			c.log.WithError(err).Debug("add ice candidate")
		}

	case models.HostDisconnected:
		c.closeLocked()
	}
}

// SendData writes msg on the data channel.
func (c *Coordinator) SendData(msg models.Message) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNoChannel
	}
	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	return dc.SendText(string(data))
}

// Connected reports whether the data channel is open.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dc != nil && c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *Coordinator) newPeerConnectionLocked() (*webrtc.PeerConnection, uint64, error) {
	c.closeLocked()
	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: c.opts.ICEServers})
	if err != nil {
		return nil, 0, fmt.Errorf("peer: new peer connection: %w", err)
	}
	c.gen++
	gen := c.gen
	c.pc = pc

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.WithField("state", state).Debug("peer connection state")
		if c.opts.OnState != nil {
			c.opts.OnState(state)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != controlChannel {
			return
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.dc = dc
		c.mu.Unlock()
		c.wireChannel(dc)
	})
	return pc, gen, nil
}

func (c *Coordinator) wireChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		c.log.WithField("label", dc.Label()).Info("data channel open")
		if c.opts.OnChannelOpen != nil {
			c.opts.OnChannelOpen()
		}
	})
	dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		msg, err := codec.Decode(raw.Data)
		if err != nil {
			c.log.WithError(err).Warn("malformed data channel message")
			return
		}
		if c.opts.OnData != nil {
			c.opts.OnData(msg)
		}
	})
}

func (c *Coordinator) startOfferLocked() {
	pc, gen, err := c.newPeerConnectionLocked()
	if err != nil {
		c.log.WithError(err).Error("start offer")
		return
	}
	ordered := true
	dc, err := pc.CreateDataChannel(controlChannel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		c.log.WithError(err).Error("create data channel")
		return
	}
	c.dc = dc
	c.wireChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.log.WithError(err).Error("create offer")
		return
	}
	c.gatherAndSendLocked(pc, gen, offer, func(sdp string) models.Message { return models.Offer{SDP: sdp} })
}

func (c *Coordinator) startAnswerLocked(sdp string) {
	pc, gen, err := c.newPeerConnectionLocked()
	if err != nil {
		c.log.WithError(err).Error("start answer")
		return
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		c.log.WithError(err).Warn("apply offer")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.log.WithError(err).Error("create answer")
		return
	}
	c.gatherAndSendLocked(pc, gen, answer, func(sdp string) models.Message { return models.Answer{SDP: sdp} })
}

// gatherAndSendLocked sets the local description and sends it once ICE
// gathering completes, so the SDP carries every candidate.
func (c *Coordinator) gatherAndSendLocked(pc *webrtc.PeerConnection, gen uint64, desc webrtc.SessionDescription, wrap func(string) models.Message) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		c.log.WithError(err).Error("set local description")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.GatherTimeout)
	c.cancel = cancel
	link := c.link

	go func() {
		defer cancel()
		select {
		case <-gatherComplete:
		case <-ctx.Done():
			c.log.WithError(ctx.Err()).Warn("ice gathering did not complete")
			return
		}

		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		msg := wrap(pc.LocalDescription().SDP)
		if err := link.Send(msg); err != nil {
			c.log.WithError(err).WithField("type", msg.Type()).Warn("send negotiation message")
		}
	}()
}

func (c *Coordinator) closeLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.dc != nil {
		c.dc.Close()
		c.dc = nil
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			c.log.WithError(err).Debug("close peer connection")
		}
		c.pc = nil
	}
}
