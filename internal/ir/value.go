package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// IRValue is a sealed interface over the parsed form of a rule payload.
// Only IRNull, IRBool, IRString, IRInt, IRBigInt, IRFloat, IRArray and
// IRObject implement it.
type IRValue interface {
	irValue()
}

// IRNull represents a JSON null.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString represents a JSON string.
type IRString string

func (IRString) irValue() {}

// IRInt represents a JSON number written without fraction or exponent
// that fits in an int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBigInt represents an integer literal outside the int64 range, kept as
// its exact decimal text.
type IRBigInt string

func (IRBigInt) irValue() {}

// IRFloat represents every other JSON number.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a JSON boolean.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values. Element order is significant.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps member names to values. Member order is not significant;
// use SortedKeys for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// ErrTrailingData is returned by ParseValue when bytes follow the first
// JSON document.
var ErrTrailingData = errors.New("unexpected data after JSON document")

// ParseValue parses exactly one JSON document into an IRValue.
//
// Invalid UTF-8 is rejected instead of being replaced, and any non-space
// bytes after the document make the input invalid. Duplicate object members
// keep the last value.
func ParseValue(raw []byte) (IRValue, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("invalid UTF-8 in JSON document")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}

	return convertToIRValue(decoded)
}

// convertToIRValue converts the output of a UseNumber decoder.
func convertToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		return parseNumber(string(val))
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// parseNumber keeps integer literals exact: IRInt when they fit in int64,
// IRBigInt otherwise. Numbers with a fraction or exponent become float64.
func parseNumber(s string) (IRValue, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IRInt(n), nil
		}
		if n, ok := new(big.Int).SetString(s, 10); ok {
			return IRBigInt(n.String()), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("number out of range: %s", s)
	}
	return IRFloat(f), nil
}

// ToValue converts plain Go values (as produced by encoding/json or
// yaml.v3 decoding into any) to an IRValue.
func ToValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case IRValue:
		return val, nil
	case nil:
		return IRNull{}, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return IRBigInt(strconv.FormatUint(val, 10)), nil
		}
		return IRInt(int64(val)), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		return parseNumber(string(val))
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
