package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidMessage is returned by Encode for values that violate the
	// envelope invariants (missing id, empty method, missing result).
	ErrInvalidMessage = errors.New("invalid message")
)

type wireRequest struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             RequestID       `json:"id"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
}

type wireNotification struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             RequestID       `json:"id"`
	Result         json.RawMessage `json:"result"`
}

type wireErrorResponse struct {
	JSONRPCVersion string     `json:"jsonrpc"`
	ID             *RequestID `json:"id"`
	Error          *Error     `json:"error"`
}

// Encode renders msg as a single JSON object. It is the structural inverse
// of Decode.
func Encode(msg Message) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case *Request:
		if m.ID.IsZero() || m.Method == "" {
			return nil, fmt.Errorf("%w: request requires id and method", ErrInvalidMessage)
		}
		v = wireRequest{JSONRPCVersion: ProtocolVersion, ID: m.ID, Method: m.Method, Params: m.Params}
	case *Notification:
		if m.Method == "" {
			return nil, fmt.Errorf("%w: notification requires method", ErrInvalidMessage)
		}
		v = wireNotification{JSONRPCVersion: ProtocolVersion, Method: m.Method, Params: m.Params}
	case *Response:
		if m.ID.IsZero() || len(m.Result) == 0 {
			return nil, fmt.Errorf("%w: response requires id and result", ErrInvalidMessage)
		}
		v = wireResponse{JSONRPCVersion: ProtocolVersion, ID: m.ID, Result: m.Result}
	case *ErrorResponse:
		if m.Error == nil {
			return nil, fmt.Errorf("%w: error response requires error", ErrInvalidMessage)
		}
		v = wireErrorResponse{JSONRPCVersion: ProtocolVersion, ID: m.ID, Error: m.Error}
	default:
		return nil, fmt.Errorf("%w: unsupported message type %T", ErrInvalidMessage, msg)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a single frame into a Message, enforcing JSON-RPC 2.0
// envelope invariants. Failures are always *DecodeError.
func Decode(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, &DecodeError{Code: ErrorCodeParseError, Reason: "invalid JSON"}
	}
	if data[0] != '{' {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, Reason: "message must be a JSON object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, Reason: err.Error()}
	}

	rawMethod, hasMethod := fields["method"]
	rawID, hasID := fields["id"]
	rawResult, hasResult := fields["result"]
	rawError, hasError := fields["error"]

	hint := HintUnknown
	switch {
	case hasMethod && hasID:
		hint = HintRequest
	case hasMethod:
		hint = HintNotification
	case hasResult || hasError:
		hint = HintResponse
	}

	var id *RequestID
	var idErr error
	if hasID && !isNull(rawID) {
		var parsed RequestID
		if idErr = json.Unmarshal(rawID, &parsed); idErr == nil {
			id = &parsed
		}
	}

	fail := func(format string, args ...any) (Message, error) {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, Reason: fmt.Sprintf(format, args...), ID: id, Hint: hint}
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != ProtocolVersion {
		return fail("jsonrpc member must be %q", ProtocolVersion)
	}

	if hasMethod {
		if hasResult || hasError {
			return fail("request message cannot have result or error fields")
		}
		var method string
		if err := json.Unmarshal(rawMethod, &method); err != nil || method == "" {
			return fail("method must be a non-empty string")
		}
		params, hasParams := fields["params"]
		if hasParams && isNull(params) {
			params = nil
		}
		if len(params) > 0 && params[0] != '{' && params[0] != '[' {
			return fail("params must be an object or array")
		}
		if !hasID {
			return &Notification{Method: method, Params: params}, nil
		}
		if id == nil {
			if idErr != nil {
				return fail("%v", idErr)
			}
			return fail("request id must not be null")
		}
		return &Request{ID: *id, Method: method, Params: params}, nil
	}

	if hasResult && hasError {
		return fail("response message cannot have both result and error fields")
	}
	if !hasResult && !hasError {
		return fail("message must have a method, result or error field")
	}
	if idErr != nil {
		return fail("%v", idErr)
	}
	if !hasID {
		return fail("response message must have an id")
	}

	if hasResult {
		if id == nil {
			return fail("response id must not be null")
		}
		return &Response{ID: *id, Result: rawResult}, nil
	}

	rpcErr, err := decodeErrorObject(rawError)
	if err != nil {
		return fail("%v", err)
	}
	return &ErrorResponse{ID: id, Error: rpcErr}, nil
}

func decodeErrorObject(raw json.RawMessage) (*Error, error) {
	var obj struct {
		Code    json.RawMessage `json:"code"`
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("error member must be an object: %w", err)
	}
	if len(obj.Code) == 0 {
		return nil, errors.New("error member requires a code")
	}
	code, err := strconv.ParseInt(string(obj.Code), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("error code must be an integer, got %s", string(obj.Code))
	}
	if obj.Message == nil {
		return nil, errors.New("error member requires a message")
	}
	return &Error{Code: ErrorCode(code), Message: *obj.Message, Data: obj.Data}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
