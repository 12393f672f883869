package casper

import (
	"encoding/json"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

type CLTypeTag byte

const (
	TagBool CLTypeTag = iota
	TagI32
	TagI64
	TagU8
	TagU32
	TagU64
	TagU128
	TagU256
	TagU512
	TagUnit
	TagString
	TagKey
	TagURef
	TagOption
	TagList
	TagByteArray
	TagResult
	TagMap
	TagTuple1
	TagTuple2
	TagTuple3
	TagAny
	TagPublicKey
)

var simpleTypeNames = map[CLTypeTag]string{
	TagBool:      "Bool",
	TagI32:       "I32",
	TagI64:       "I64",
	TagU8:        "U8",
	TagU32:       "U32",
	TagU64:       "U64",
	TagU128:      "U128",
	TagU256:      "U256",
	TagU512:      "U512",
	TagUnit:      "Unit",
	TagString:    "String",
	TagKey:       "Key",
	TagURef:      "URef",
	TagAny:       "Any",
	TagPublicKey: "PublicKey",
}

var simpleTypeTags = func() map[string]CLTypeTag {
	m := make(map[string]CLTypeTag, len(simpleTypeNames))
	for tag, name := range simpleTypeNames {
		m[name] = tag
	}
	return m
}()

// CLType describes the type of a CLValue. Inner holds the element type of
// Option and List, ok/err of Result, key/value of Map and the members of
// tuples. Size is only meaningful for ByteArray.
type CLType struct {
	Tag   CLTypeTag
	Inner []CLType
	Size  uint32
}

func SimpleType(tag CLTypeTag) CLType {
	return CLType{Tag: tag}
}

func OptionOf(inner CLType) CLType {
	return CLType{Tag: TagOption, Inner: []CLType{inner}}
}

func ListOf(inner CLType) CLType {
	return CLType{Tag: TagList, Inner: []CLType{inner}}
}

func ByteArrayOf(size uint32) CLType {
	return CLType{Tag: TagByteArray, Size: size}
}

func (t CLType) Bytes() []byte {
	out := []byte{byte(t.Tag)}

	switch t.Tag {
	case TagByteArray:
		out = appendU32(out, t.Size)
	case TagOption, TagList, TagResult, TagMap, TagTuple1, TagTuple2, TagTuple3:
		for _, inner := range t.Inner {
			out = append(out, inner.Bytes()...)
		}
	}

	return out
}

func (t CLType) String() string {
	b, err := t.MarshalJSON()
	if err != nil {
		return "invalid"
	}
	return string(b)
}

func (t CLType) MarshalJSON() ([]byte, error) {
	if name, ok := simpleTypeNames[t.Tag]; ok {
		return json.Marshal(name)
	}

	switch t.Tag {
	case TagByteArray:
		return json.Marshal(map[string]uint32{"ByteArray": t.Size})
	case TagOption, TagList:
		if len(t.Inner) != 1 {
			return nil, errors.Errorf("cl type %d requires one inner type", t.Tag)
		}
		name := "Option"
		if t.Tag == TagList {
			name = "List"
		}
		return json.Marshal(map[string]CLType{name: t.Inner[0]})
	case TagResult:
		if len(t.Inner) != 2 {
			return nil, errors.New("Result requires ok and err types")
		}
		return json.Marshal(map[string]map[string]CLType{
			"Result": {"ok": t.Inner[0], "err": t.Inner[1]},
		})
	case TagMap:
		if len(t.Inner) != 2 {
			return nil, errors.New("Map requires key and value types")
		}
		return json.Marshal(map[string]map[string]CLType{
			"Map": {"key": t.Inner[0], "value": t.Inner[1]},
		})
	case TagTuple1, TagTuple2, TagTuple3:
		n := int(t.Tag-TagTuple1) + 1
		if len(t.Inner) != n {
			return nil, errors.Errorf("Tuple%d requires %d types", n, n)
		}
		return json.Marshal(map[string][]CLType{"Tuple" + strconv.Itoa(n): t.Inner})
	}

	return nil, errors.Errorf("unknown cl type tag %d", t.Tag)
}

func (t *CLType) UnmarshalJSON(data []byte) error {
	value, vt, _, err := jsonparser.Get(data)
	if err != nil {
		return errors.Wrap(err, "invalid cl_type")
	}

	parsed, err := parseCLType(value, vt)
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

func parseCLType(value []byte, vt jsonparser.ValueType) (CLType, error) {
	switch vt {
	case jsonparser.String:
		tag, ok := simpleTypeTags[string(value)]
		if !ok {
			return CLType{}, errors.Errorf("unknown cl_type %q", value)
		}
		return CLType{Tag: tag}, nil

	case jsonparser.Object:
		var (
			result   CLType
			found    bool
			innerErr error
		)

		err := jsonparser.ObjectEach(value, func(key, v []byte, vt jsonparser.ValueType, _ int) error {
			if found {
				return errors.New("cl_type object must have exactly one key")
			}
			found = true
			result, innerErr = parseCompositeType(string(key), v, vt)
			return innerErr
		})
		if err != nil {
			return CLType{}, errors.Wrap(err, "invalid cl_type")
		}
		if !found {
			return CLType{}, errors.New("empty cl_type object")
		}

		return result, nil
	}

	return CLType{}, errors.Errorf("unexpected cl_type json type %s", vt)
}

func parseCompositeType(name string, v []byte, vt jsonparser.ValueType) (CLType, error) {
	switch name {
	case "Option", "List":
		inner, err := parseCLType(v, vt)
		if err != nil {
			return CLType{}, err
		}
		if name == "Option" {
			return OptionOf(inner), nil
		}
		return ListOf(inner), nil

	case "ByteArray":
		size, err := jsonparser.ParseInt(v)
		if err != nil || size < 0 {
			return CLType{}, errors.Errorf("invalid ByteArray size %q", v)
		}
		return ByteArrayOf(uint32(size)), nil

	case "Result":
		return parsePairType(TagResult, v, "ok", "err")

	case "Map":
		return parsePairType(TagMap, v, "key", "value")

	case "Tuple1", "Tuple2", "Tuple3":
		var (
			members []CLType
			elemErr error
		)
		_, err := jsonparser.ArrayEach(v, func(elem []byte, et jsonparser.ValueType, _ int, _ error) {
			if elemErr != nil {
				return
			}
			var member CLType
			member, elemErr = parseCLType(elem, et)
			members = append(members, member)
		})
		if err != nil {
			return CLType{}, errors.Wrapf(err, "invalid %s", name)
		}
		if elemErr != nil {
			return CLType{}, elemErr
		}

		tag := TagTuple1 + CLTypeTag(name[len(name)-1]-'1')
		if len(members) != int(tag-TagTuple1)+1 {
			return CLType{}, errors.Errorf("%s has %d members", name, len(members))
		}
		return CLType{Tag: tag, Inner: members}, nil
	}

	return CLType{}, errors.Errorf("unknown cl_type %q", name)
}

func parsePairType(tag CLTypeTag, v []byte, first, second string) (CLType, error) {
	inner := make([]CLType, 0, 2)

	for _, key := range []string{first, second} {
		value, vt, _, err := jsonparser.Get(v, key)
		if err != nil {
			return CLType{}, errors.Wrapf(err, "missing %q", key)
		}

		t, err := parseCLType(value, vt)
		if err != nil {
			return CLType{}, err
		}
		inner = append(inner, t)
	}

	return CLType{Tag: tag, Inner: inner}, nil
}
