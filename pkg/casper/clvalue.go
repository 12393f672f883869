package casper

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

var ErrArgNotFound = errors.New("argument not found")

// CLValue is a serialized value together with its type. Parsed carries the
// node's human readable rendering and is informational only.
type CLValue struct {
	Type   CLType
	Bytes  []byte
	Parsed json.RawMessage
}

func NewU512(v *big.Int) (CLValue, error) {
	b, err := encodeBigUint(v)
	if err != nil {
		return CLValue{}, err
	}

	return CLValue{
		Type:   SimpleType(TagU512),
		Bytes:  b,
		Parsed: json.RawMessage(strconv.Quote(v.String())),
	}, nil
}

func NewU64(v uint64) CLValue {
	return CLValue{
		Type:   SimpleType(TagU64),
		Bytes:  appendU64(nil, v),
		Parsed: json.RawMessage(strconv.FormatUint(v, 10)),
	}
}

func NewString(s string) CLValue {
	parsed, _ := json.Marshal(s)

	return CLValue{
		Type:   SimpleType(TagString),
		Bytes:  appendString(nil, s),
		Parsed: parsed,
	}
}

func NewPublicKeyValue(k PublicKey) CLValue {
	return CLValue{
		Type:   SimpleType(TagPublicKey),
		Bytes:  k.Bytes(),
		Parsed: json.RawMessage(strconv.Quote(k.Hex())),
	}
}

func NewByteArray(b []byte) CLValue {
	raw := make([]byte, len(b))
	copy(raw, b)

	return CLValue{
		Type:   ByteArrayOf(uint32(len(b))),
		Bytes:  raw,
		Parsed: json.RawMessage(strconv.Quote(hex.EncodeToString(b))),
	}
}

// NewOption wraps inner as Some(inner), or None of innerType when inner is nil.
func NewOption(inner *CLValue, innerType CLType) CLValue {
	if inner == nil {
		return CLValue{
			Type:   OptionOf(innerType),
			Bytes:  []byte{0},
			Parsed: json.RawMessage("null"),
		}
	}

	b := make([]byte, 0, len(inner.Bytes)+1)
	b = append(b, 1)
	b = append(b, inner.Bytes...)

	return CLValue{
		Type:   OptionOf(inner.Type),
		Bytes:  b,
		Parsed: inner.Parsed,
	}
}

// ToBytes is the runtime argument encoding: length-prefixed value bytes
// followed by the type.
func (v CLValue) ToBytes() []byte {
	out := appendBytes(nil, v.Bytes)
	return append(out, v.Type.Bytes()...)
}

// BigInt decodes unsigned integer values.
func (v CLValue) BigInt() (*big.Int, error) {
	switch v.Type.Tag {
	case TagU8:
		if len(v.Bytes) != 1 {
			return nil, errors.New("invalid U8 length")
		}
		return new(big.Int).SetUint64(uint64(v.Bytes[0])), nil
	case TagU32:
		if len(v.Bytes) != 4 {
			return nil, errors.New("invalid U32 length")
		}
		return new(big.Int).SetUint64(uint64(binary.LittleEndian.Uint32(v.Bytes))), nil
	case TagU64:
		if len(v.Bytes) != 8 {
			return nil, errors.New("invalid U64 length")
		}
		return new(big.Int).SetUint64(binary.LittleEndian.Uint64(v.Bytes)), nil
	case TagU128:
		return decodeBigUint(v.Bytes, 16)
	case TagU256:
		return decodeBigUint(v.Bytes, 32)
	case TagU512:
		return decodeBigUint(v.Bytes, 64)
	}

	return nil, errors.Errorf("cl_type %s is not an unsigned integer", v.Type)
}

type clValueJSON struct {
	CLType CLType          `json:"cl_type"`
	Bytes  string          `json:"bytes"`
	Parsed json.RawMessage `json:"parsed"`
}

func (v CLValue) MarshalJSON() ([]byte, error) {
	parsed := v.Parsed
	if len(parsed) == 0 {
		parsed = json.RawMessage("null")
	}

	return json.Marshal(clValueJSON{
		CLType: v.Type,
		Bytes:  hex.EncodeToString(v.Bytes),
		Parsed: parsed,
	})
}

func (v *CLValue) UnmarshalJSON(data []byte) error {
	typeValue, typeKind, _, err := jsonparser.Get(data, "cl_type")
	if err != nil {
		return errors.Wrap(err, "cl_type")
	}

	t, err := parseCLType(typeValue, typeKind)
	if err != nil {
		return err
	}

	bytesHex, err := jsonparser.GetString(data, "bytes")
	if err != nil {
		return errors.Wrap(err, "bytes")
	}

	b, err := hex.DecodeString(bytesHex)
	if err != nil {
		return errors.Wrap(err, "invalid value bytes")
	}

	parsed, err := rawJSONValue(data, "parsed")
	if err != nil {
		return err
	}

	*v = CLValue{Type: t, Bytes: b, Parsed: parsed}
	return nil
}

// rawJSONValue returns the raw JSON of a key, re-quoting strings that
// jsonparser hands back unquoted.
func rawJSONValue(data []byte, key string) (json.RawMessage, error) {
	value, vt, _, err := jsonparser.Get(data, key)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, key)
	}

	if vt == jsonparser.String {
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		return json.Marshal(s)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// NamedArg is a single runtime argument.
type NamedArg struct {
	Name  string
	Value CLValue
}

// RuntimeArgs keeps arguments in insertion order. Names are not required to
// be unique; lookups return the first match.
type RuntimeArgs []NamedArg

func (a RuntimeArgs) Get(name string) (CLValue, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}

	return CLValue{}, false
}

// BigInt decodes the first argument called name as an unsigned integer.
func (a RuntimeArgs) BigInt(name string) (*big.Int, error) {
	v, ok := a.Get(name)
	if !ok {
		return nil, errors.Wrap(ErrArgNotFound, name)
	}

	return v.BigInt()
}

func (a RuntimeArgs) Bytes() []byte {
	out := appendU32(nil, uint32(len(a)))
	for _, arg := range a {
		out = appendString(out, arg.Name)
		out = append(out, arg.Value.ToBytes()...)
	}

	return out
}

func (a RuntimeArgs) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(a))
	for i, arg := range a {
		pairs[i] = [2]any{arg.Name, arg.Value}
	}

	return json.Marshal(pairs)
}

func (a *RuntimeArgs) UnmarshalJSON(data []byte) error {
	var (
		args    RuntimeArgs
		elemErr error
	)

	_, err := jsonparser.ArrayEach(data, func(pair []byte, vt jsonparser.ValueType, _ int, _ error) {
		if elemErr != nil {
			return
		}
		if vt != jsonparser.Array {
			elemErr = errors.New("runtime argument must be a [name, value] pair")
			return
		}

		name, err := jsonparser.GetString(pair, "[0]")
		if err != nil {
			elemErr = errors.Wrap(err, "argument name")
			return
		}

		raw, _, _, err := jsonparser.Get(pair, "[1]")
		if err != nil {
			elemErr = errors.Wrapf(err, "argument %q value", name)
			return
		}

		var value CLValue
		if err := value.UnmarshalJSON(raw); err != nil {
			elemErr = errors.Wrapf(err, "argument %q", name)
			return
		}

		args = append(args, NamedArg{Name: name, Value: value})
	})
	if err != nil {
		return errors.Wrap(err, "invalid runtime args")
	}
	if elemErr != nil {
		return elemErr
	}

	*a = args
	return nil
}
