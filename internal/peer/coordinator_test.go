package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/orchestrator"
)

// chanLink stands in for the orchestrator link: it queues what the
// coordinator sends so the test can hand it to the other side.
type chanLink struct {
	role orchestrator.Role
	out  chan models.Message
}

func (l *chanLink) Role() orchestrator.Role { return l.role }

func (l *chanLink) Send(msg models.Message) error {
	if l.role == orchestrator.RoleResponder && msg.Type() == models.TypeOffer {
		return orchestrator.ErrRoleViolation
	}
	l.out <- msg
	return nil
}

type inbox struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (i *inbox) add(msg models.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) snapshot() []models.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Message(nil), i.msgs...)
}

func TestOfferAnswerOverDataChannel(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}

	var hostIn, mobileIn inbox
	host := New(Options{IncludeLoopback: true, OnData: hostIn.add})
	mobile := New(Options{IncludeLoopback: true, OnData: mobileIn.add})

	hostLink := &chanLink{role: orchestrator.RoleInitiator, out: make(chan models.Message, 8)}
	mobileLink := &chanLink{role: orchestrator.RoleResponder, out: make(chan models.Message, 8)}
	host.Attach(hostLink)
	mobile.Attach(mobileLink)
	t.Cleanup(func() {
		host.Detach()
		mobile.Detach()
	})

	// The responder never starts negotiation on its own.
	mobile.HandleSignal(models.PeerJoined{PeerID: "host_1", Role: "host"})
	select {
	case msg := <-mobileLink.out:
		t.Fatalf("responder sent %T", msg)
	case <-time.After(50 * time.Millisecond):
	}

	host.HandleSignal(models.PeerJoined{PeerID: "mobile_1", Role: "mobile"})

	var offer models.Message
	select {
	case offer = <-hostLink.out:
	case <-time.After(10 * time.Second):
		t.Fatal("no offer")
	}
	require.IsType(t, models.Offer{}, offer)
	mobile.HandleSignal(offer)

	var answer models.Message
	select {
	case answer = <-mobileLink.out:
	case <-time.After(10 * time.Second):
		t.Fatal("no answer")
	}
	require.IsType(t, models.Answer{}, answer)
	host.HandleSignal(answer)

	require.Eventually(t, func() bool {
		return host.Connected() && mobile.Connected()
	}, 15*time.Second, 20*time.Millisecond)

	touch := models.Touch{TouchID: 2, Phase: models.PhaseBegan, PositionX: 0.5, PositionY: 0.25}
	require.NoError(t, mobile.SendData(touch))
	haptic := models.Haptic{CommandType: models.HapticShort, Duration: 0.1, Intensity: 1}
	require.NoError(t, host.SendData(haptic))

	require.Eventually(t, func() bool {
		return len(hostIn.snapshot()) == 1 && len(mobileIn.snapshot()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, touch, hostIn.snapshot()[0])
	assert.Equal(t, haptic, mobileIn.snapshot()[0])
}

func TestSendDataWithoutChannel(t *testing.T) {
	c := New(Options{})
	assert.ErrorIs(t, c.SendData(models.Touch{Phase: models.PhaseBegan}), ErrNoChannel)
	assert.False(t, c.Connected())
}

func TestSignalsIgnoredWhenDetached(t *testing.T) {
	c := New(Options{})
	assert.NotPanics(t, func() {
		c.HandleSignal(models.Offer{SDP: "v=0"})
		c.HandleSignal(models.Answer{SDP: "v=0"})
	})

	link := &chanLink{role: orchestrator.RoleInitiator, out: make(chan models.Message, 1)}
	c.Attach(link)
	c.HandleSignal(models.Offer{SDP: "v=0"})
	c.Detach()
	assert.Empty(t, link.out)
}
