package casper

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const HashLength = blake2b.Size256

// Hash is a 32 byte blake2b digest, rendered as lowercase hex.
type Hash [HashLength]byte

func ParseHash(s string) (Hash, error) {
	var h Hash

	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrapf(err, "invalid hash %q", s)
	}
	if len(b) != HashLength {
		return h, errors.Errorf("invalid hash length %d, expected %d", len(b), HashLength)
	}

	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

func blake2b256(parts ...[]byte) Hash {
	// New256 only fails for keys longer than 64 bytes.
	d, _ := blake2b.New256(nil)
	for _, p := range parts {
		d.Write(p)
	}

	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}
