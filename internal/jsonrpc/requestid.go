package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that is either a string or an integer.
// The zero value is the absent id. RequestID is comparable and may be used as
// a map key.
type RequestID struct {
	value any // string | int64
}

// StringID returns a string request id.
func StringID(s string) RequestID { return RequestID{value: s} }

// IntID returns an integer request id.
func IntID(n int64) RequestID { return RequestID{value: n} }

// String returns the string representation of the ID.
func (id RequestID) String() string {
	switch v := id.value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		panic("unreachable: RequestID contains unsupported type")
	}
}

// Value returns the underlying string or int64.
func (id RequestID) Value() any {
	return id.value
}

// IsZero reports whether the id is absent.
func (id RequestID) IsZero() bool {
	return id.value == nil
}

// MarshalJSON implements json.Marshaler. The absent id encodes as null.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Only strings and integers that
// fit in an int64 are accepted; null, fractional numbers and every other JSON
// type are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("JSON-RPC ID is empty")
	}

	switch data[0] {
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("JSON-RPC ID: %w", err)
		}
		id.value = str
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("JSON-RPC ID must be an integer, got: %s", string(data))
		}
		id.value = n
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string or integer, got: %s", string(data))
}
