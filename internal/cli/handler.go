package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/orchestrator"
	"github.com/mossy-p/bridge-signaling/internal/peer"
)

// consoleHandler reports orchestrator events on the log and writes room
// messages to the output.
type consoleHandler struct {
	log     *logrus.Entry
	out     *lineWriter
	haptic  *peer.HapticDispatcher
	failure error
}

func (h *consoleHandler) OnStateChange(from, to orchestrator.State) {
	h.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("Connection state changed")
}

func (h *consoleHandler) OnMessage(msg models.Message) {
	h.haptic.Handle(msg)
	h.out.write(msg)
}

func (h *consoleHandler) OnJoinedRoom(msg models.JoinedRoom) {
	h.log.WithField("room", msg.RoomID).Info("Joined room")
}

func (h *consoleHandler) OnPeerJoined(msg models.PeerJoined) {
	h.log.WithFields(logrus.Fields{"remote": msg.PeerID, "type": msg.Role}).Info("Peer joined")
}

func (h *consoleHandler) OnHostDisconnected() {
	h.log.Warn("Host disconnected")
}

func (h *consoleHandler) OnServerError(msg models.Error) {
	h.log.WithField("context", msg.Context).Warn("Server error: " + msg.Error)
}

func (h *consoleHandler) OnFailed(err error) {
	h.failure = err
}

// lineWriter writes messages as JSON lines. Data channel callbacks call it
// from pion goroutines.
type lineWriter struct {
	mu  sync.Mutex
	w   io.Writer
	log logrus.FieldLogger
}

func (l *lineWriter) write(msg models.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		l.log.WithError(err).Warn("Cannot encode message")
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}

// logVibrator stands in for a vibration motor.
type logVibrator struct {
	log logrus.FieldLogger
}

func (v logVibrator) Vibrate(d time.Duration, intensity float64) error {
	v.log.WithFields(logrus.Fields{"duration": d, "intensity": intensity}).Info("Vibrate")
	return nil
}

func (v logVibrator) PlaySound(name string) error {
	v.log.WithField("sound", name).Info("Play sound")
	return nil
}
