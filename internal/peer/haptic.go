package peer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
)

// Vibrator is the device capability haptic commands are played on.
type Vibrator interface {
	Vibrate(d time.Duration, intensity float64) error
	PlaySound(name string) error
}

// Preset durations for the named vibration patterns.
const (
	DefaultVibration = 200 * time.Millisecond
	ShortVibration   = 50 * time.Millisecond
	LongVibration    = 500 * time.Millisecond
)

// HapticDispatcher plays haptic commands when the capability was granted.
type HapticDispatcher struct {
	caps models.Capabilities
	dev  Vibrator
	log  *logrus.Entry
}

func NewHapticDispatcher(caps models.Capabilities, dev Vibrator, log logrus.FieldLogger) *HapticDispatcher {
	return &HapticDispatcher{caps: caps, dev: dev, log: logging.Component(log, "haptic")}
}

// Dispatch plays cmd. It returns played=false without error when the device
// cannot vibrate, so callers can ignore unsupported commands.
func (h *HapticDispatcher) Dispatch(cmd models.Haptic) (played bool, err error) {
	if err := cmd.Validate(); err != nil {
		return false, fmt.Errorf("peer: haptic: %w", err)
	}
	if h.dev == nil {
		return false, nil
	}

	if cmd.CommandType == models.HapticPlaySound {
		if cmd.SoundName == "" {
			return false, fmt.Errorf("peer: haptic: PlaySound without soundName")
		}
		return true, h.dev.PlaySound(cmd.SoundName)
	}

	if !h.caps.CanVibrate {
		h.log.WithField("command", cmd.CommandType).Debug("vibration not granted, ignored")
		return false, nil
	}

	d, intensity := vibrationFor(cmd)
	return true, h.dev.Vibrate(d, intensity)
}

// Handle adapts Dispatch to a message callback, logging failures.
func (h *HapticDispatcher) Handle(msg models.Message) {
	cmd, ok := msg.(models.Haptic)
	if !ok {
		return
	}
	if _, err := h.Dispatch(cmd); err != nil {
		h.log.WithError(err).Warn("haptic command failed")
	}
}

func vibrationFor(cmd models.Haptic) (time.Duration, float64) {
	intensity := cmd.Intensity
	if intensity == 0 {
		intensity = 1
	}
	switch cmd.CommandType {
	case models.HapticShort:
		return ShortVibration, intensity
	case models.HapticLong:
		return LongVibration, intensity
	case models.HapticCustom:
		d := time.Duration(cmd.Duration * float64(time.Second))
		if d <= 0 {
			d = DefaultVibration
		}
		return d, intensity
	default:
		return DefaultVibration, intensity
	}
}
