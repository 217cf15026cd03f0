package series

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Type selects the value variant a series carries. The numeric value doubles
// as the tag byte of the stored cell encoding.
type Type byte

const (
	TypeFloat Type = 1
	TypeDict  Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeDict:
		return "dict"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Value is a point payload, either a Float or a Dict.
type Value interface {
	valueType() Type
}

// Float is a numeric point value. It is held as float64 in memory and
// stored as an IEEE-754 32-bit float on the wire.
type Float float64

func (Float) valueType() Type { return TypeFloat }

// Dict is a structured point value with string keys.
type Dict map[string]any

func (Dict) valueType() Type { return TypeDict }

// EncodeCell serializes a value and its UTC offset into the stored cell
// layout: one tag byte, the offset as little-endian int32, then the payload.
// Float payloads are little-endian float32, dict payloads are msgpack maps.
func EncodeCell(v Value, offset int32) ([]byte, error) {
	switch x := v.(type) {
	case Float:
		b := make([]byte, 9)
		b[0] = byte(TypeFloat)
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		binary.LittleEndian.PutUint32(b[5:9], math.Float32bits(float32(x)))
		return b, nil
	case Dict:
		payload, err := msgpack.Marshal(map[string]any(x))
		if err != nil {
			return nil, fmt.Errorf("failed to encode dict payload: %w", err)
		}
		b := make([]byte, 5, 5+len(payload))
		b[0] = byte(TypeDict)
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		return append(b, payload...), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T: %w", v, ErrArgument)
	}
}

// DecodeCell parses a stored cell. The tag byte must agree with the expected
// series type, otherwise ErrCodecMismatch is returned.
func DecodeCell(b []byte, typ Type) (Value, int32, error) {
	if len(b) < 5 {
		return nil, 0, fmt.Errorf("cell too short (%d bytes): %w", len(b), ErrArgument)
	}
	if tag := Type(b[0]); tag != typ {
		return nil, 0, fmt.Errorf("cell tagged %s but series expects %s: %w", tag, typ, ErrCodecMismatch)
	}
	offset := int32(binary.LittleEndian.Uint32(b[1:5]))
	if typ == TypeFloat {
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("float cell too short (%d bytes): %w", len(b), ErrArgument)
		}
		return Float(math.Float32frombits(binary.LittleEndian.Uint32(b[5:9]))), offset, nil
	}
	var m map[string]any
	if err := msgpack.Unmarshal(b[5:], &m); err != nil {
		return nil, 0, fmt.Errorf("failed to decode dict payload: %w", err)
	}
	return Dict(m), offset, nil
}
