package models

import (
	"errors"
	"fmt"
)

var (
	errOutOfRange   = errors.New("out of range")
	errMissingField = errors.New("missing field")
)

// Validate checks the invariants both ends rely on: a non-negative contact id
// and a position inside the unit square.
func (t Touch) Validate() error {
	if t.TouchID < 0 {
		return fmt.Errorf("touchId %d: %w", t.TouchID, errOutOfRange)
	}
	if !t.Phase.Valid() {
		return fmt.Errorf("phase %d: %w", int(t.Phase), errOutOfRange)
	}
	if !unit(t.PositionX) || !unit(t.PositionY) {
		return fmt.Errorf("position (%g, %g): %w", t.PositionX, t.PositionY, errOutOfRange)
	}
	return nil
}

func (h Haptic) Validate() error {
	if !h.CommandType.Valid() {
		return fmt.Errorf("commandType %d: %w", int(h.CommandType), errOutOfRange)
	}
	if h.Duration < 0 {
		return fmt.Errorf("duration %g: %w", h.Duration, errOutOfRange)
	}
	if !unit(h.Intensity) {
		return fmt.Errorf("intensity %g: %w", h.Intensity, errOutOfRange)
	}
	return nil
}

func (r Register) Validate() error {
	switch {
	case r.PeerID == "":
		return fmt.Errorf("peerId: %w", errMissingField)
	case r.ClientType != ClientTypeMobile && r.ClientType != ClientTypeHost:
		return fmt.Errorf("clientType %q: %w", r.ClientType, errOutOfRange)
	case r.RoomID == "":
		return fmt.Errorf("roomId: %w", errMissingField)
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
