package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

type vibration struct {
	d         time.Duration
	intensity float64
}

type fakeVibrator struct {
	vibrations []vibration
	sounds     []string
}

func (f *fakeVibrator) Vibrate(d time.Duration, intensity float64) error {
	f.vibrations = append(f.vibrations, vibration{d, intensity})
	return nil
}

func (f *fakeVibrator) PlaySound(name string) error {
	f.sounds = append(f.sounds, name)
	return nil
}

func TestHapticDispatch(t *testing.T) {
	dev := &fakeVibrator{}
	h := NewHapticDispatcher(models.Capabilities{CanVibrate: true}, dev, nil)

	tests := []struct {
		cmd  models.Haptic
		want vibration
	}{
		{models.Haptic{CommandType: models.HapticDefault}, vibration{DefaultVibration, 1}},
		{models.Haptic{CommandType: models.HapticShort, Intensity: 0.5}, vibration{ShortVibration, 0.5}},
		{models.Haptic{CommandType: models.HapticLong, Intensity: 1}, vibration{LongVibration, 1}},
		{models.Haptic{CommandType: models.HapticCustom, Duration: 0.3, Intensity: 0.2}, vibration{300 * time.Millisecond, 0.2}},
	}
	for _, tt := range tests {
		played, err := h.Dispatch(tt.cmd)
		require.NoError(t, err)
		assert.True(t, played)
		assert.Equal(t, tt.want, dev.vibrations[len(dev.vibrations)-1], tt.cmd.CommandType.String())
	}
}

func TestHapticWithoutCapability(t *testing.T) {
	dev := &fakeVibrator{}
	h := NewHapticDispatcher(models.Capabilities{}, dev, nil)

	played, err := h.Dispatch(models.Haptic{CommandType: models.HapticLong})
	require.NoError(t, err)
	assert.False(t, played)
	assert.Empty(t, dev.vibrations)

	// Sound does not need the vibration grant.
	played, err = h.Dispatch(models.Haptic{CommandType: models.HapticPlaySound, SoundName: "ding"})
	require.NoError(t, err)
	assert.True(t, played)
	assert.Equal(t, []string{"ding"}, dev.sounds)
}

func TestHapticRejectsInvalid(t *testing.T) {
	h := NewHapticDispatcher(models.Capabilities{CanVibrate: true}, &fakeVibrator{}, nil)

	_, err := h.Dispatch(models.Haptic{CommandType: models.HapticShort, Intensity: 3})
	assert.Error(t, err)
	_, err = h.Dispatch(models.Haptic{CommandType: models.HapticPlaySound})
	assert.Error(t, err)
}

func TestHapticHandleIgnoresOtherMessages(t *testing.T) {
	dev := &fakeVibrator{}
	h := NewHapticDispatcher(models.Capabilities{CanVibrate: true}, dev, nil)

	h.Handle(models.Touch{Phase: models.PhaseBegan})
	h.Handle(models.Haptic{CommandType: models.HapticShort})
	assert.Len(t, dev.vibrations, 1)
}
