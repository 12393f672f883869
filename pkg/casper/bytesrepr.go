package casper

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

// Little-endian, length-prefixed encoding used by the node to hash and
// verify deploys.

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendU64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendU32(buf, uint32(len(b)))
	return append(buf, b...)
}

// encodeBigUint encodes an unsigned big integer as a length byte followed by
// its minimal little-endian representation. Zero is a single 0x00 byte.
func encodeBigUint(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, errors.New("negative value cannot be encoded")
	}

	be := v.Bytes()
	if len(be) > 64 {
		return nil, errors.Errorf("value too large: %d bytes", len(be))
	}

	out := make([]byte, 1, len(be)+1)
	out[0] = byte(len(be))
	for i := len(be) - 1; i >= 0; i-- {
		out = append(out, be[i])
	}

	return out, nil
}

func decodeBigUint(b []byte, maxLen int) (*big.Int, error) {
	if len(b) == 0 {
		return nil, errors.New("empty numeric value")
	}

	n := int(b[0])
	if n > maxLen {
		return nil, errors.Errorf("numeric value length %d exceeds %d", n, maxLen)
	}
	if len(b) < n+1 {
		return nil, errors.Errorf("numeric value truncated: want %d bytes, have %d", n, len(b)-1)
	}

	be := make([]byte, n)
	for i := 0; i < n; i++ {
		be[n-1-i] = b[1+i]
	}

	return new(big.Int).SetBytes(be), nil
}
