package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Capability names an optional protocol feature that gates methods.
type Capability string

const (
	CapabilitySampling           Capability = "sampling"
	CapabilityLogging            Capability = "logging"
	CapabilityPrompts            Capability = "prompts"
	CapabilityResources          Capability = "resources"
	CapabilityResourcesSubscribe Capability = "resources.subscribe"
	CapabilityTools              Capability = "tools"
)

// Owner returns the side that declares the capability.
func (c Capability) Owner() Side {
	if c == CapabilitySampling {
		return SideClient
	}
	return SideServer
}

// ClientCapabilities advertises client features.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Sampling     *SamplingCapability        `json:"sampling,omitempty"`

	// Extra holds capability keys not modeled above, preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// SamplingCapability is present when the client can sample an LLM.
type SamplingCapability struct{}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Logging      *LoggingCapability         `json:"logging,omitempty"`
	Prompts      *PromptsCapability         `json:"prompts,omitempty"`
	Resources    *ResourcesCapability       `json:"resources,omitempty"`
	Tools        *ToolsCapability           `json:"tools,omitempty"`

	// Extra holds capability keys not modeled above, preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

type LoggingCapability struct{}

type PromptsCapability struct{}

// ResourcesCapability is present when the server offers resources.
type ResourcesCapability struct {
	// Subscribe reports support for resources/subscribe.
	Subscribe bool `json:"subscribe,omitzero"`
}

type ToolsCapability struct{}

var (
	clientCapabilityKeys = []string{"experimental", "sampling"}
	serverCapabilityKeys = []string{"experimental", "logging", "prompts", "resources", "tools"}
)

// UnmarshalJSON decodes known members strictly and keeps unknown ones.
func (c *ClientCapabilities) UnmarshalJSON(data []byte) error {
	type plain ClientCapabilities
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownMembers(data, clientCapabilityKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = ClientCapabilities(p)
	return nil
}

// MarshalJSON emits known members followed by any preserved extras.
func (c ClientCapabilities) MarshalJSON() ([]byte, error) {
	type plain ClientCapabilities
	return marshalWithExtra(plain(c), c.Extra)
}

// UnmarshalJSON decodes known members strictly and keeps unknown ones.
func (c *ServerCapabilities) UnmarshalJSON(data []byte) error {
	type plain ServerCapabilities
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownMembers(data, serverCapabilityKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = ServerCapabilities(p)
	return nil
}

// MarshalJSON emits known members followed by any preserved extras.
func (c ServerCapabilities) MarshalJSON() ([]byte, error) {
	type plain ServerCapabilities
	return marshalWithExtra(plain(c), c.Extra)
}

// Has reports whether a client-owned capability is declared.
func (c ClientCapabilities) Has(capability Capability) bool {
	switch capability {
	case CapabilitySampling:
		return c.Sampling != nil
	}
	return false
}

// Has reports whether a server-owned capability is declared.
func (c ServerCapabilities) Has(capability Capability) bool {
	switch capability {
	case CapabilityLogging:
		return c.Logging != nil
	case CapabilityPrompts:
		return c.Prompts != nil
	case CapabilityResources:
		return c.Resources != nil
	case CapabilityResourcesSubscribe:
		return c.Resources != nil && c.Resources.Subscribe
	case CapabilityTools:
		return c.Tools != nil
	}
	return false
}

func unknownMembers(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("capabilities must be an object: %w", err)
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, known := merged[k]; known {
			continue
		}
		merged[k] = raw
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(merged); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
