package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// JSON-RPC constants accepted by the ubus route.
const (
	JSONRPCVersion = "2.0"
	UbusMethodCall = "call"
)

const envelopeSchemaURL = "ubus-envelope.json"

// envelopeSchema describes the batch form the device accepts: an array whose
// first element is a JSON-RPC "call" with a four element params tuple of
// session, object, method and arguments. Extra elements are not inspected.
const envelopeSchema = `{
  "type": "array",
  "minItems": 1,
  "items": [
    {
      "type": "object",
      "required": ["jsonrpc", "method", "params"],
      "properties": {
        "jsonrpc": {"const": "2.0"},
        "method": {"const": "call"},
        "params": {"type": "array", "minItems": 4, "maxItems": 4}
      }
    }
  ]
}`

var envelopeValidator = compileEnvelopeSchema()

func compileEnvelopeSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		panic(fmt.Sprintf("ubus envelope schema: %v", err))
	}
	return compiler.MustCompile(envelopeSchemaURL)
}

// DecodeBody parses a request body as generic JSON. Numbers are kept as
// json.Number so re-encoding preserves them exactly.
func DecodeBody(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// IsValidUbusRequest reports whether a decoded body is a well-formed ubus
// call envelope. It never errors; anything unexpected is simply invalid.
func IsValidUbusRequest(body any) bool {
	if body == nil {
		return false
	}
	return envelopeValidator.Validate(body) == nil
}

// DescribeCall returns the ubus object and method named by a valid
// envelope, for logging. Non-string entries yield empty strings.
func DescribeCall(body any) (object, method string) {
	items, ok := body.([]any)
	if !ok || len(items) == 0 {
		return "", ""
	}
	call, ok := items[0].(map[string]any)
	if !ok {
		return "", ""
	}
	params, ok := call["params"].([]any)
	if !ok || len(params) < 3 {
		return "", ""
	}
	object, _ = params[1].(string)
	method, _ = params[2].(string)
	return object, method
}

// UbusErrorFrom reports whether an upstream response carries a JSON-RPC
// error on its first element, returning the raw error value. Falsy values
// (null, false, 0, "") do not count as errors.
func UbusErrorFrom(body []byte) (json.RawMessage, bool) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		return nil, false
	}

	res := gjson.GetBytes(body, "0.error")
	if !res.Exists() {
		return nil, false
	}

	switch res.Type {
	case gjson.Null, gjson.False:
		return nil, false
	case gjson.Number:
		if res.Num == 0 {
			return nil, false
		}
	case gjson.String:
		if res.Str == "" {
			return nil, false
		}
	}

	return json.RawMessage(res.Raw), true
}
