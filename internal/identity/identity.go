// Package identity derives the stable peer identifier a client registers
// with. The identifier never reveals the raw device fingerprint.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

const hashPrefixLen = 16

// ClientIdentity is created once per process and never mutated.
type ClientIdentity struct {
	PeerID string
	Type   string
}

// New hashes fingerprint into a peer id of the form
// "<clientType>_<first 16 hex chars of sha256(fingerprint)>".
func New(clientType, fingerprint string) (ClientIdentity, error) {
	if clientType != models.ClientTypeMobile && clientType != models.ClientTypeHost {
		return ClientIdentity{}, fmt.Errorf("identity: unsupported client type %q", clientType)
	}
	if fingerprint == "" {
		return ClientIdentity{}, errors.New("identity: empty device fingerprint")
	}
	sum := sha256.Sum256([]byte(fingerprint))
	return ClientIdentity{
		PeerID: clientType + "_" + hex.EncodeToString(sum[:])[:hashPrefixLen],
		Type:   clientType,
	}, nil
}

// FromHost uses the machine hostname as the fingerprint.
func FromHost(clientType string) (ClientIdentity, error) {
	name, err := os.Hostname()
	if err != nil {
		return ClientIdentity{}, fmt.Errorf("identity: hostname: %w", err)
	}
	return New(clientType, name)
}

func (c ClientIdentity) String() string { return c.PeerID }
