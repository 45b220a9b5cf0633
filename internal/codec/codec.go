// Package codec converts signaling envelopes between their flat JSON wire
// form and the typed variants in package models.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

var (
	// ErrMalformedMessage reports a payload that is not a JSON object or
	// whose fields do not match the shape selected by its discriminator.
	ErrMalformedMessage = errors.New("codec: malformed message")

	// ErrUnknownMessageType reports an attempt to encode a typed message
	// outside the catalogue.
	ErrUnknownMessageType = errors.New("codec: unknown message type")
)

// fields holds the top-level members of one envelope. Only the members the
// discriminator selects are ever decoded, so a stray member of another
// variant cannot spoil a message.
type fields map[string]json.RawMessage

// Decode parses one wire envelope. An absent or unrecognized discriminator
// yields models.Unknown and a nil error. Only payloads that are not JSON
// objects, or catalogue messages with missing or ill-typed fields, fail with
// ErrMalformedMessage; the returned message is then an Unknown flagged
// Malformed so callers can still log it.
func Decode(data []byte) (models.Message, error) {
	raw := append(json.RawMessage(nil), data...)
	malformed := func(err error) (models.Message, error) {
		return models.Unknown{Raw: raw, Malformed: true}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if !isObject(data) {
		return malformed(errors.New("payload is not a JSON object"))
	}

	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return malformed(err)
	}
	var discriminator string
	present, err := f.get("type", &discriminator)
	if err != nil {
		return malformed(err)
	}
	if !present {
		return models.Unknown{Raw: raw}, nil
	}
	t := models.MessageType(discriminator)
	if !t.Known() {
		return models.Unknown{Discriminator: discriminator, Raw: raw}, nil
	}

	msg, err := f.variant(t)
	if err != nil {
		return malformed(fmt.Errorf("%s: %w", t, err))
	}
	return msg, nil
}

// get decodes the named member into dst and reports whether it was present.
// An explicit null counts as absent.
func (f fields) get(name string, dst any) (bool, error) {
	v, ok := f[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}

// reader collects the members of one variant, remembering the first decode
// error and every missing required member.
type reader struct {
	f       fields
	err     error
	missing []string
}

func (r *reader) opt(name string, dst any) bool {
	if r.err != nil {
		return false
	}
	ok, err := r.f.get(name, dst)
	if err != nil {
		r.err = err
	}
	return ok
}

func (r *reader) req(name string, dst any) {
	if !r.opt(name, dst) && r.err == nil {
		r.missing = append(r.missing, name)
	}
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(r.missing, ", "))
	}
	return nil
}

func (f fields) variant(t models.MessageType) (models.Message, error) {
	r := &reader{f: f}

	switch t {
	case models.TypeRegister:
		var m models.Register
		r.req("peerId", &m.PeerID)
		r.req("clientType", &m.ClientType)
		r.req("roomId", &m.RoomID)
		r.opt("token", &m.Token)
		if err := r.done(); err != nil {
			return nil, err
		}
		return m, m.Validate()

	case models.TypeRegistered:
		return models.Registered{}, nil

	case models.TypeJoinedRoom:
		var m models.JoinedRoom
		r.opt("roomId", &m.RoomID)
		r.opt("peerId", &m.PeerID)
		r.opt("role", &m.Role)
		return m, r.done()

	case models.TypePeerJoined:
		var m models.PeerJoined
		r.req("peerId", &m.PeerID)
		r.opt("role", &m.Role)
		return m, r.done()

	case models.TypeHostDisconnected:
		return models.HostDisconnected{}, nil

	case models.TypeError:
		var m models.Error
		r.req("error", &m.Error)
		r.opt("context", &m.Context)
		return m, r.done()

	case models.TypeTouch:
		var m models.Touch
		r.req("touchId", &m.TouchID)
		r.req("phase", &m.Phase)
		r.req("positionX", &m.PositionX)
		r.req("positionY", &m.PositionY)
		if err := r.done(); err != nil {
			return nil, err
		}
		return m, m.Validate()

	case models.TypeHaptic:
		var m models.Haptic
		r.req("commandType", &m.CommandType)
		r.req("duration", &m.Duration)
		r.req("intensity", &m.Intensity)
		r.opt("soundName", &m.SoundName)
		if err := r.done(); err != nil {
			return nil, err
		}
		return m, m.Validate()

	case models.TypeOffer, models.TypeAnswer:
		var sdp string
		r.req("sdp", &sdp)
		if err := r.done(); err != nil {
			return nil, err
		}
		if sdp == "" {
			return nil, errors.New("sdp is empty")
		}
		if t == models.TypeOffer {
			return models.Offer{SDP: sdp}, nil
		}
		return models.Answer{SDP: sdp}, nil

	case models.TypeIceCandidate:
		var m models.IceCandidate
		r.req("candidate", &m.Candidate)
		r.opt("sdpMid", &m.SDPMid)
		r.opt("sdpMLineIndex", &m.SDPMLineIndex)
		return m, r.done()
	}
	return nil, fmt.Errorf("no shape for %q", t)
}

type validator interface {
	Validate() error
}

// Encode produces the flat wire form of msg with the discriminator as the
// first field. Unknown messages are written back exactly as received.
func Encode(msg models.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownMessageType)
	}
	switch u := msg.(type) {
	case models.Unknown:
		return encodeUnknown(u)
	case *models.Unknown:
		return encodeUnknown(*u)
	}

	t := msg.Type()
	if !t.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
	if v, ok := msg.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("codec: encode %s: %w", t, err)
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", t, err)
	}
	discriminator, err := json.Marshal(string(t))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(discriminator) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(discriminator)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeUnknown(u models.Unknown) ([]byte, error) {
	if len(u.Raw) == 0 {
		return nil, fmt.Errorf("%w: empty unknown message", ErrUnknownMessageType)
	}
	return append([]byte(nil), u.Raw...), nil
}

// IsUnknownType reports whether msg is a well-formed envelope whose
// discriminator is absent or outside the catalogue.
func IsUnknownType(msg models.Message) bool {
	u, ok := msg.(models.Unknown)
	return ok && !u.Malformed
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
