package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/yosida95/uritemplate/v3"
)

type kind int

const (
	kindMissing kind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func (k kind) String() string {
	switch k {
	case kindMissing:
		return "missing"
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	default:
		return "object"
	}
}

func kindOf(raw json.RawMessage) kind {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return kindMissing
	}
	switch raw[0] {
	case 'n':
		return kindNull
	case 't', 'f':
		return kindBool
	case '"':
		return kindString
	case '[':
		return kindArray
	case '{':
		return kindObject
	default:
		return kindNumber
	}
}

// object is a decoded JSON object whose members are still raw.
type object map[string]json.RawMessage

// parseObject decodes raw as a JSON object. An absent raw is treated as an
// empty object when optional is true.
func parseObject(raw json.RawMessage, optional bool) (object, error) {
	switch kindOf(raw) {
	case kindMissing:
		if optional {
			return object{}, nil
		}
		return nil, &ValidationError{Reason: "params are required"}
	case kindObject:
	default:
		return nil, &ValidationError{Reason: "expected a JSON object, got " + kindOf(raw).String()}
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return o, nil
}

func fieldError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (o object) expect(field string, required bool, kinds ...kind) error {
	k := kindOf(o[field])
	if k == kindMissing {
		if required {
			return fieldError(field, "is required")
		}
		return nil
	}
	for _, want := range kinds {
		if k == want {
			return nil
		}
	}
	return fieldError(field, "must be a "+kinds[0].String()+", got "+k.String())
}

func (o object) str(field string, required bool) (string, error) {
	if err := o.expect(field, required, kindString); err != nil {
		return "", err
	}
	var s string
	if raw, ok := o[field]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fieldError(field, err.Error())
		}
	}
	return s, nil
}

func (o object) integer(field string, required bool) (int64, bool, error) {
	if err := o.expect(field, required, kindNumber); err != nil {
		return 0, false, err
	}
	raw, ok := o[field]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, false, fieldError(field, "must be an integer")
	}
	return n, true, nil
}

func (o object) child(field string, required bool) (object, error) {
	if err := o.expect(field, required, kindObject); err != nil {
		return nil, err
	}
	raw, ok := o[field]
	if !ok {
		return nil, nil
	}
	c, err := parseObject(raw, false)
	if err != nil {
		return nil, fieldError(field, "must be an object")
	}
	return c, nil
}

// decode unmarshals the whole object into dst after the structural checks
// have passed.
func decode(raw json.RawMessage, dst any) error {
	if kindOf(raw) == kindMissing {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

func optionalObject(build func(object) (any, error)) func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		o, err := parseObject(raw, true)
		if err != nil {
			return nil, err
		}
		return build(o)
	}
}

func validateURI(build func(uri string) any) func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		o, err := parseObject(raw, false)
		if err != nil {
			return nil, err
		}
		uri, err := o.str("uri", true)
		if err != nil {
			return nil, err
		}
		return build(uri), nil
	}
}

func validateImplementation(o object, field string) error {
	info, err := o.child(field, true)
	if err != nil {
		return err
	}
	if _, err := info.str("name", true); err != nil {
		return fieldError(field+".name", "is required and must be a string")
	}
	if _, err := info.str("version", true); err != nil {
		return fieldError(field+".version", "is required and must be a string")
	}
	return nil
}

func validateInitialize(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if _, _, err := o.integer("protocolVersion", true); err != nil {
		return nil, err
	}
	if err := o.expect("capabilities", true, kindObject); err != nil {
		return nil, err
	}
	if err := validateImplementation(o, "clientInfo"); err != nil {
		return nil, err
	}
	var req mcp.InitializeRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func validateInitializeResult(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if _, _, err := o.integer("protocolVersion", true); err != nil {
		return nil, err
	}
	if err := o.expect("capabilities", true, kindObject); err != nil {
		return nil, err
	}
	if err := validateImplementation(o, "serverInfo"); err != nil {
		return nil, err
	}
	var res mcp.InitializeResult
	if err := decode(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func validateEmptyResult(raw json.RawMessage) (any, error) {
	if _, err := parseObject(raw, false); err != nil {
		return nil, err
	}
	return &mcp.EmptyResult{}, nil
}

func validateProgress(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if err := o.expect("progressToken", true, kindString, kindNumber); err != nil {
		return nil, err
	}
	numericToken := kindOf(o["progressToken"]) == kindNumber
	var intToken int64
	if numericToken {
		if intToken, _, err = o.integer("progressToken", true); err != nil {
			return nil, err
		}
	}
	if err := o.expect("progress", true, kindNumber); err != nil {
		return nil, err
	}
	if err := o.expect("total", false, kindNumber); err != nil {
		return nil, err
	}
	var p mcp.ProgressNotificationParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	// Integer tokens would otherwise decode as float64.
	if numericToken {
		p.ProgressToken = intToken
	}
	return &p, nil
}

func validateGetPrompt(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if _, err := o.str("name", true); err != nil {
		return nil, err
	}
	args, err := o.child("arguments", false)
	if err != nil {
		return nil, err
	}
	for k := range args {
		if err := args.expect(k, true, kindString); err != nil {
			return nil, fieldError("arguments."+k, "must be a string")
		}
	}
	var req mcp.GetPromptRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func validateCallTool(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if _, err := o.str("name", true); err != nil {
		return nil, err
	}
	if err := o.expect("arguments", false, kindObject); err != nil {
		return nil, err
	}
	var req mcp.CallToolRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func level(o object) (mcp.LoggingLevel, error) {
	s, err := o.str("level", true)
	if err != nil {
		return "", err
	}
	l := mcp.LoggingLevel(s)
	if !mcp.IsValidLoggingLevel(l) {
		return "", fieldError("level", "must be one of debug, info, warning or error")
	}
	return l, nil
}

func validateSetLevel(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	l, err := level(o)
	if err != nil {
		return nil, err
	}
	return &mcp.SetLevelRequest{Level: l}, nil
}

func validateLogMessage(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	l, err := level(o)
	if err != nil {
		return nil, err
	}
	logger, err := o.str("logger", false)
	if err != nil {
		return nil, err
	}
	data, ok := o["data"]
	if !ok {
		return nil, fieldError("data", "is required")
	}
	return &mcp.LoggingMessageNotification{Level: l, Logger: logger, Data: data}, nil
}

func validateContent(o object, field string) error {
	c, err := o.child(field, true)
	if err != nil {
		return err
	}
	typ, err := c.str("type", true)
	if err != nil {
		return fieldError(field+".type", "is required and must be a string")
	}
	switch typ {
	case mcp.ContentTypeText:
		if _, err := c.str("text", true); err != nil {
			return fieldError(field+".text", "is required for text content")
		}
	case mcp.ContentTypeImage:
		if _, err := c.str("data", true); err != nil {
			return fieldError(field+".data", "is required for image content")
		}
		if _, err := c.str("mimeType", true); err != nil {
			return fieldError(field+".mimeType", "is required for image content")
		}
	default:
		return fieldError(field+".type", "must be text or image")
	}
	return nil
}

func validateRole(o object, field string) error {
	s, err := o.str(field, true)
	if err != nil {
		return err
	}
	if !mcp.IsValidRole(mcp.Role(s)) {
		return fieldError(field, "must be user or assistant")
	}
	return nil
}

func validateCreateMessage(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if err := o.expect("messages", true, kindArray); err != nil {
		return nil, err
	}
	var msgs []json.RawMessage
	if err := json.Unmarshal(o["messages"], &msgs); err != nil {
		return nil, fieldError("messages", err.Error())
	}
	for i, m := range msgs {
		mo, err := parseObject(m, false)
		if err != nil {
			return nil, fieldError("messages["+strconv.Itoa(i)+"]", "must be an object")
		}
		if err := validateRole(mo, "role"); err != nil {
			return nil, prefix("messages["+strconv.Itoa(i)+"].", err)
		}
		if err := validateContent(mo, "content"); err != nil {
			return nil, prefix("messages["+strconv.Itoa(i)+"].", err)
		}
	}
	if _, err := o.str("systemPrompt", false); err != nil {
		return nil, err
	}
	if ic, err := o.str("includeContext", false); err != nil {
		return nil, err
	} else if ic != "" {
		switch mcp.IncludeContext(ic) {
		case mcp.IncludeContextNone, mcp.IncludeContextThisServer, mcp.IncludeContextAllServers:
		default:
			return nil, fieldError("includeContext", "must be none, thisServer or allServers")
		}
	}
	if err := o.expect("temperature", false, kindNumber); err != nil {
		return nil, err
	}
	maxTokens, _, err := o.integer("maxTokens", true)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		return nil, fieldError("maxTokens", "must be positive")
	}
	if err := o.expect("stopSequences", false, kindArray); err != nil {
		return nil, err
	}
	if err := o.expect("metadata", false, kindObject); err != nil {
		return nil, err
	}
	var req mcp.CreateMessageRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func validateCreateMessageResult(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	if err := validateRole(o, "role"); err != nil {
		return nil, err
	}
	if err := validateContent(o, "content"); err != nil {
		return nil, err
	}
	if _, err := o.str("model", true); err != nil {
		return nil, err
	}
	reason, err := o.str("stopReason", true)
	if err != nil {
		return nil, err
	}
	switch mcp.StopReason(reason) {
	case mcp.StopReasonEndTurn, mcp.StopReasonStopSequence, mcp.StopReasonMaxTokens:
	default:
		return nil, fieldError("stopReason", "must be endTurn, stopSequence or maxTokens")
	}
	var res mcp.CreateMessageResult
	if err := decode(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func validateComplete(raw json.RawMessage) (any, error) {
	o, err := parseObject(raw, false)
	if err != nil {
		return nil, err
	}
	ref, err := o.child("ref", true)
	if err != nil {
		return nil, err
	}
	typ, err := ref.str("type", true)
	if err != nil {
		return nil, prefix("ref.", err)
	}
	switch typ {
	case mcp.RefTypePrompt:
		if _, err := ref.str("name", true); err != nil {
			return nil, prefix("ref.", err)
		}
	case mcp.RefTypeResource:
		uri, err := ref.str("uri", true)
		if err != nil {
			return nil, prefix("ref.", err)
		}
		if _, err := uritemplate.New(uri); err != nil {
			return nil, fieldError("ref.uri", "is not a valid URI template: "+err.Error())
		}
	default:
		return nil, fieldError("ref.type", "must be ref/prompt or ref/resource")
	}
	arg, err := o.child("argument", true)
	if err != nil {
		return nil, err
	}
	if _, err := arg.str("name", true); err != nil {
		return nil, prefix("argument.", err)
	}
	if _, err := arg.str("value", true); err != nil {
		return nil, prefix("argument.", err)
	}
	var req mcp.CompleteRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func prefix(p string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{Field: p + ve.Field, Reason: ve.Reason}
	}
	return err
}
