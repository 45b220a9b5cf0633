package models

import (
	"encoding/json"
	"fmt"
)

// TouchPhase is the lifecycle stage of one touch contact.
type TouchPhase int

const (
	PhaseBegan TouchPhase = iota
	PhaseMoved
	PhaseEnded
	PhaseCanceled
)

var touchPhaseNames = [...]string{"Began", "Moved", "Ended", "Canceled"}

func (p TouchPhase) String() string {
	if p < 0 || int(p) >= len(touchPhaseNames) {
		return fmt.Sprintf("TouchPhase(%d)", int(p))
	}
	return touchPhaseNames[p]
}

func (p TouchPhase) Valid() bool {
	return p >= PhaseBegan && p <= PhaseCanceled
}

func (p TouchPhase) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("models: invalid touch phase %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the canonical name or the integer form sent by older
// hosts that serialize the enum ordinal.
func (p *TouchPhase) UnmarshalJSON(b []byte) error {
	v, err := decodeEnum(b, touchPhaseNames[:], nil)
	if err != nil {
		return fmt.Errorf("models: touch phase: %w", err)
	}
	*p = TouchPhase(v)
	return nil
}

// HapticCommandType selects the kind of feedback a Haptic message requests.
type HapticCommandType int

const (
	HapticDefault HapticCommandType = iota
	HapticShort
	HapticLong
	HapticCustom
	HapticPlaySound
)

var hapticNames = [...]string{"Default", "Short", "Long", "Custom", "PlaySound"}

// Legacy spellings used by the first host builds.
var hapticAliases = map[string]int{
	"VibrateDefault": int(HapticDefault),
	"VibrateShort":   int(HapticShort),
	"VibrateLong":    int(HapticLong),
	"VibrateCustom":  int(HapticCustom),
}

func (h HapticCommandType) String() string {
	if h < 0 || int(h) >= len(hapticNames) {
		return fmt.Sprintf("HapticCommandType(%d)", int(h))
	}
	return hapticNames[h]
}

func (h HapticCommandType) Valid() bool {
	return h >= HapticDefault && h <= HapticPlaySound
}

// Vibrates reports whether the command drives the vibration motor.
func (h HapticCommandType) Vibrates() bool {
	return h.Valid() && h != HapticPlaySound
}

func (h HapticCommandType) MarshalJSON() ([]byte, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("models: invalid haptic command %d", int(h))
	}
	return json.Marshal(h.String())
}

func (h *HapticCommandType) UnmarshalJSON(b []byte) error {
	v, err := decodeEnum(b, hapticNames[:], hapticAliases)
	if err != nil {
		return fmt.Errorf("models: haptic command: %w", err)
	}
	*h = HapticCommandType(v)
	return nil
}

func decodeEnum(b []byte, names []string, aliases map[string]int) (int, error) {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		for i, name := range names {
			if name == s {
				return i, nil
			}
		}
		if v, ok := aliases[s]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown value %q", s)
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return 0, fmt.Errorf("expected string or integer, got %s", b)
	}
	if n < 0 || n >= len(names) {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return n, nil
}
