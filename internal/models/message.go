package models

import "encoding/json"

// MessageType is the wire discriminator carried in the "type" field of every
// signaling envelope.
type MessageType string

const (
	TypeRegister         MessageType = "register"
	TypeRegistered       MessageType = "registered"
	TypeJoinedRoom       MessageType = "joined-room"
	TypePeerJoined       MessageType = "peer-joined"
	TypeHostDisconnected MessageType = "host-disconnected"
	TypeError            MessageType = "error"
	TypeTouch            MessageType = "touch"
	TypeHaptic           MessageType = "haptic"

	// Peer negotiation, relayed by the server between room members.
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeIceCandidate MessageType = "ice-candidate"
)

// Known reports whether t is part of the message catalogue.
func (t MessageType) Known() bool {
	switch t {
	case TypeRegister, TypeRegistered, TypeJoinedRoom, TypePeerJoined,
		TypeHostDisconnected, TypeError, TypeTouch, TypeHaptic,
		TypeOffer, TypeAnswer, TypeIceCandidate:
		return true
	default:
		return false
	}
}

// Relayed reports whether the server forwards messages of this type verbatim
// to the other members of a room.
func (t MessageType) Relayed() bool {
	switch t {
	case TypeTouch, TypeHaptic, TypeOffer, TypeAnswer, TypeIceCandidate:
		return true
	default:
		return false
	}
}

// Client types used as role tags on the wire.
const (
	ClientTypeMobile = "mobile"
	ClientTypeHost   = "host"
)

// Message is one variant of the signaling envelope. The envelope is flat:
// the discriminator and the payload fields share one JSON object.
type Message interface {
	Type() MessageType
}

// Register announces a client to the rendezvous server.
type Register struct {
	PeerID     string `json:"peerId"`
	ClientType string `json:"clientType"`
	RoomID     string `json:"roomId"`
	Token      string `json:"token,omitempty"`
}

func (Register) Type() MessageType { return TypeRegister }

// Registered acknowledges a Register.
type Registered struct{}

func (Registered) Type() MessageType { return TypeRegistered }

// JoinedRoom confirms room membership after registration.
type JoinedRoom struct {
	RoomID string `json:"roomId,omitempty"`
	PeerID string `json:"peerId,omitempty"`
	Role   string `json:"role,omitempty"`
}

func (JoinedRoom) Type() MessageType { return TypeJoinedRoom }

// PeerJoined tells existing room members about a newcomer.
type PeerJoined struct {
	PeerID string `json:"peerId"`
	Role   string `json:"role"`
}

func (PeerJoined) Type() MessageType { return TypePeerJoined }

// HostDisconnected tells guests that the room host went away.
type HostDisconnected struct{}

func (HostDisconnected) Type() MessageType { return TypeHostDisconnected }

// Error is a server-side error notice.
type Error struct {
	Error   string `json:"error"`
	Context string `json:"context"`
}

func (Error) Type() MessageType { return TypeError }

// Touch carries one touch contact sample in normalized screen coordinates.
type Touch struct {
	TouchID   int        `json:"touchId"`
	Phase     TouchPhase `json:"phase"`
	PositionX float64    `json:"positionX"`
	PositionY float64    `json:"positionY"`
}

func (Touch) Type() MessageType { return TypeTouch }

// Haptic asks the receiving device to produce haptic or audio feedback.
type Haptic struct {
	CommandType HapticCommandType `json:"commandType"`
	Duration    float64           `json:"duration"`
	Intensity   float64           `json:"intensity"`
	SoundName   string            `json:"soundName,omitempty"`
}

func (Haptic) Type() MessageType { return TypeHaptic }

// Offer carries a complete SDP offer from the initiator.
type Offer struct {
	SDP string `json:"sdp"`
}

func (Offer) Type() MessageType { return TypeOffer }

// Answer carries a complete SDP answer from the responder.
type Answer struct {
	SDP string `json:"sdp"`
}

func (Answer) Type() MessageType { return TypeAnswer }

// IceCandidate carries one trickled ICE candidate.
type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (IceCandidate) Type() MessageType { return TypeIceCandidate }

// Unknown holds an envelope whose discriminator is missing or not part of the
// catalogue, or whose payload could not be decoded. Raw is the payload as
// received.
type Unknown struct {
	Discriminator string
	Raw           json.RawMessage
	Malformed     bool
}

func (u Unknown) Type() MessageType { return MessageType(u.Discriminator) }

// Capabilities records which device features the embedding application was
// granted. The core only reads these flags.
type Capabilities struct {
	CanVibrate      bool `json:"canVibrate" yaml:"canVibrate"`
	CanCaptureAudio bool `json:"canCaptureAudio" yaml:"canCaptureAudio"`
	CanCaptureVideo bool `json:"canCaptureVideo" yaml:"canCaptureVideo"`
}
