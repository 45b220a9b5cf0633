package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
)

// DefaultTouchInterval caps touch batches at about 60 per second.
const DefaultTouchInterval = 16 * time.Millisecond

// DataSender is the outbound half of a peer data channel. *Coordinator
// implements it.
type DataSender interface {
	SendData(msg models.Message) error
	Connected() bool
}

// ScreenTouch is one active contact in screen pixels.
type ScreenTouch struct {
	ID    int               `json:"touchId"`
	Phase models.TouchPhase `json:"phase"`
	X     float64           `json:"x"`
	Y     float64           `json:"y"`
}

type TouchSenderOptions struct {
	Width, Height float64
	// Interval is the minimum gap between batches. Defaults to
	// DefaultTouchInterval.
	Interval time.Duration
	Clock    clock.Clock
	Logger   logrus.FieldLogger
}

// TouchSender normalizes screen touches to the unit square and sends them
// over the data channel, at most one batch per interval. Batches carrying an
// Ended or Canceled contact are never throttled, so the far end always sees
// a contact finish.
type TouchSender struct {
	out      DataSender
	clock    clock.Clock
	interval time.Duration
	log      *logrus.Entry

	mu            sync.Mutex
	width, height float64
	last          time.Time
	sentOnce      bool
}

func NewTouchSender(out DataSender, opts TouchSenderOptions) (*TouchSender, error) {
	if out == nil {
		return nil, errors.New("peer: touch sender needs a data channel")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("peer: invalid screen size %gx%g", opts.Width, opts.Height)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTouchInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &TouchSender{
		out:      out,
		clock:    opts.Clock,
		interval: opts.Interval,
		log:      logging.Component(opts.Logger, "touch"),
		width:    opts.Width,
		height:   opts.Height,
	}, nil
}

// Resize updates the screen size used for normalization.
func (s *TouchSender) Resize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("peer: invalid screen size %gx%g", width, height)
	}
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	return nil
}

// Send writes one batch of active touches and returns how many went out.
// Nothing is sent while the channel is closed or the batch is throttled.
func (s *TouchSender) Send(touches []ScreenTouch) (int, error) {
	if len(touches) == 0 || !s.out.Connected() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.sentOnce && now.Sub(s.last) < s.interval && !finishes(touches) {
		return 0, nil
	}

	sent := 0
	for _, t := range touches {
		msg := models.Touch{
			TouchID:   t.ID,
			Phase:     t.Phase,
			PositionX: unitClamp(t.X / s.width),
			PositionY: unitClamp(t.Y / s.height),
		}
		if err := s.out.SendData(msg); err != nil {
			return sent, fmt.Errorf("peer: send touch %d: %w", t.ID, err)
		}
		sent++
	}
	s.last = now
	s.sentOnce = true
	s.log.WithField("touches", sent).Trace("touch batch sent")
	return sent, nil
}

func finishes(touches []ScreenTouch) bool {
	for _, t := range touches {
		if t.Phase == models.PhaseEnded || t.Phase == models.PhaseCanceled {
			return true
		}
	}
	return false
}

func unitClamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
