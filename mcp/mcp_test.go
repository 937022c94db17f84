package mcp

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCapabilitiesPreserveUnknownMembers(t *testing.T) {
	raw := `{"tools":{},"resources":{"subscribe":true},"roots":{"listChanged":true},"experimental":{"x":{}}}`

	var caps ServerCapabilities
	require.NoError(t, json.Unmarshal([]byte(raw), &caps))

	assert.True(t, caps.Has(CapabilityTools))
	assert.True(t, caps.Has(CapabilityResources))
	assert.True(t, caps.Has(CapabilityResourcesSubscribe))
	assert.False(t, caps.Has(CapabilityLogging))
	assert.False(t, caps.Has(CapabilityPrompts))
	require.Contains(t, caps.Extra, "roots")
	assert.JSONEq(t, `{"listChanged":true}`, string(caps.Extra["roots"]))
	assert.JSONEq(t, `{}`, string(caps.Experimental["x"]))

	out, err := json.Marshal(caps)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestClientCapabilitiesRejectMistypedKnownMembers(t *testing.T) {
	var caps ClientCapabilities
	assert.Error(t, json.Unmarshal([]byte(`{"sampling":5}`), &caps))

	require.NoError(t, json.Unmarshal([]byte(`{"sampling":{}}`), &caps))
	assert.True(t, caps.Has(CapabilitySampling))
	assert.Nil(t, caps.Extra)
}

func TestResourcesWithoutSubscribe(t *testing.T) {
	caps := ServerCapabilities{Resources: &ResourcesCapability{}}
	assert.True(t, caps.Has(CapabilityResources))
	assert.False(t, caps.Has(CapabilityResourcesSubscribe))

	out, err := json.Marshal(caps)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resources":{}}`, string(out))
}

func TestProgressTokenRoundTrip(t *testing.T) {
	params, err := WithProgressToken(json.RawMessage(`{"name":"echo","_meta":{"other":1}}`), "tok-1")
	require.NoError(t, err)

	tok, ok, err := ProgressTokenOf(params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	params, err = WithProgressToken(nil, int64(7))
	require.NoError(t, err)
	tok, ok, err = ProgressTokenOf(params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), tok)

	_, ok, err = ProgressTokenOf(json.RawMessage(`{"name":"x"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ProgressTokenOf(json.RawMessage(`{"_meta":{"progressToken":1.5}}`))
	assert.ErrorIs(t, err, ErrInvalidProgressToken)

	_, err = WithProgressToken(json.RawMessage(`[1]`), "t")
	assert.Error(t, err)
}

func TestCompleteResultCapsValues(t *testing.T) {
	values := make([]string, 150)
	for i := range values {
		values[i] = fmt.Sprintf("v%d", i)
	}
	out, err := json.Marshal(CompleteResult{Completion: Completion{Values: values}})
	require.NoError(t, err)

	var decoded struct {
		Completion Completion `json:"completion"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Len(t, decoded.Completion.Values, MaxCompletionValues)
	assert.True(t, decoded.Completion.HasMore)
	assert.Equal(t, 150, decoded.Completion.Total)

	out, err = json.Marshal(CompleteResult{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"completion":{"values":[]}}`, string(out))
}

func TestLoggingLevelSeverity(t *testing.T) {
	assert.True(t, IsValidLoggingLevel(LoggingLevelWarning))
	assert.False(t, IsValidLoggingLevel("critical"))
	assert.Less(t, LoggingLevelDebug.Severity(), LoggingLevelError.Severity())
}

func TestSessionStateOrdering(t *testing.T) {
	assert.Less(t, StateUninitialized, StateInitializing)
	assert.Less(t, StateInitializing, StateReady)
	assert.Less(t, StateReady, StateClosed)
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, SideServer, SideClient.Peer())
}
