package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	errID := StringID("e-1")
	msgs := []Message{
		&Request{ID: IntID(1), Method: "initialize", Params: json.RawMessage(`{"protocolVersion":1,"capabilities":{}}`)},
		&Request{ID: StringID("abc"), Method: "ping"},
		&Request{ID: IntID(-7), Method: "tools/call", Params: json.RawMessage(`{"name":"<b>&","arguments":{"x":[1,2,3]}}`)},
		&Notification{Method: "notifications/initialized"},
		&Notification{Method: "notifications/progress", Params: json.RawMessage(`{"progressToken":"t","progress":0.5}`)},
		&Response{ID: IntID(42), Result: json.RawMessage(`{}`)},
		&Response{ID: StringID("x"), Result: json.RawMessage(`{"tools":[{"name":"echo"}]}`)},
		&ErrorResponse{ID: &errID, Error: &Error{Code: ErrorCodeMethodNotFound, Message: "method not found"}},
		&ErrorResponse{ID: nil, Error: &Error{Code: ErrorCodeParseError, Message: "parse error", Data: json.RawMessage(`{"offset":3}`)}},
	}

	for _, m := range msgs {
		t.Run(m.Type(), func(t *testing.T) {
			b, err := Encode(m)
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestDecodeDiscriminatesByFieldPresence(t *testing.T) {
	cases := map[string]string{
		`{"jsonrpc":"2.0","id":1,"method":"notifications/initialized"}`: "request",
		`{"jsonrpc":"2.0","method":"ping"}`:                             "notification",
		`{"jsonrpc":"2.0","id":"1","result":null}`:                      "response",
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"x"}}`: "error",
	}
	for raw, want := range cases {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, msg.Type(), raw)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code ErrorCode
		hint MessageHint
	}{
		{"not json", `{"jsonrpc":`, ErrorCodeParseError, HintUnknown},
		{"empty", ``, ErrorCodeParseError, HintUnknown},
		{"array batch", `[{"jsonrpc":"2.0","method":"ping","id":1}]`, ErrorCodeInvalidRequest, HintUnknown},
		{"scalar", `42`, ErrorCodeInvalidRequest, HintUnknown},
		{"missing version", `{"id":1,"method":"ping"}`, ErrorCodeInvalidRequest, HintRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrorCodeInvalidRequest, HintRequest},
		{"numeric version", `{"jsonrpc":2.0,"method":"ping"}`, ErrorCodeInvalidRequest, HintNotification},
		{"result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"m"}}`, ErrorCodeInvalidRequest, HintResponse},
		{"method with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, ErrorCodeInvalidRequest, HintRequest},
		{"no discriminator", `{"jsonrpc":"2.0","id":1}`, ErrorCodeInvalidRequest, HintUnknown},
		{"null request id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, ErrorCodeInvalidRequest, HintRequest},
		{"float request id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`, ErrorCodeInvalidRequest, HintRequest},
		{"bool request id", `{"jsonrpc":"2.0","id":true,"method":"ping"}`, ErrorCodeInvalidRequest, HintRequest},
		{"object id", `{"jsonrpc":"2.0","id":{},"result":{}}`, ErrorCodeInvalidRequest, HintResponse},
		{"null response id", `{"jsonrpc":"2.0","id":null,"result":{}}`, ErrorCodeInvalidRequest, HintResponse},
		{"response without id", `{"jsonrpc":"2.0","result":{}}`, ErrorCodeInvalidRequest, HintResponse},
		{"empty method", `{"jsonrpc":"2.0","method":""}`, ErrorCodeInvalidRequest, HintNotification},
		{"scalar params", `{"jsonrpc":"2.0","id":1,"method":"ping","params":3}`, ErrorCodeInvalidRequest, HintRequest},
		{"error without code", `{"jsonrpc":"2.0","id":1,"error":{"message":"m"}}`, ErrorCodeInvalidRequest, HintResponse},
		{"string error code", `{"jsonrpc":"2.0","id":1,"error":{"code":"1","message":"m"}}`, ErrorCodeInvalidRequest, HintResponse},
		{"error without message", `{"jsonrpc":"2.0","id":1,"error":{"code":1}}`, ErrorCodeInvalidRequest, HintResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.raw))
			require.Error(t, err)
			assert.Nil(t, msg)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.hint, de.Hint)
		})
	}
}

func TestDecodeErrorKeepsRecoverableID(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"1.0","id":"req-9","method":"ping"}`))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.NotNil(t, de.ID)
	assert.Equal(t, StringID("req-9"), *de.ID)
	assert.True(t, de.Replyable())

	_, err = Decode([]byte(`{"jsonrpc":"1.0","method":"notifications/initialized"}`))
	require.True(t, errors.As(err, &de))
	assert.False(t, de.Replyable())
}

func TestDecodeNullParamsIsAbsent(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":3,"method":"tools/list","params":null}`))
	require.NoError(t, err)
	req := msg.(*Request)
	assert.Nil(t, req.Params)
}

func TestEncodeRejectsIncompleteMessages(t *testing.T) {
	for _, m := range []Message{
		&Request{Method: "ping"},
		&Request{ID: IntID(1)},
		&Notification{},
		&Response{ID: IntID(1)},
		&ErrorResponse{},
	} {
		_, err := Encode(m)
		assert.ErrorIs(t, err, ErrInvalidMessage, "%#v", m)
	}
}

func TestEncodeErrorResponseWithNullID(t *testing.T) {
	b, err := Encode(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, string(b))
}

func TestRequestIDAsMapKey(t *testing.T) {
	m := map[RequestID]int{IntID(1): 1, StringID("1"): 2}
	assert.Len(t, m, 2)
	assert.Equal(t, 1, m[IntID(1)])
	assert.Equal(t, 2, m[StringID("1")])
	assert.Equal(t, "1", IntID(1).String())
	assert.True(t, RequestID{}.IsZero())
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	rpcErr := NewError(ErrorCodeInvalidParams, "bad", map[string]string{"field": "uri"})
	assert.Same(t, rpcErr, AsError(rpcErr))
	assert.JSONEq(t, `{"field":"uri"}`, string(rpcErr.Data))

	got := AsError(errors.New("boom"))
	assert.Equal(t, ErrorCodeInternalError, got.Code)
	assert.Equal(t, "internal error", got.Message)

	de := &DecodeError{Code: ErrorCodeInvalidRequest, Reason: "nope"}
	assert.Equal(t, ErrorCodeInvalidRequest, AsError(de).Code)
}
