package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	v, err := DecodeBody([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestIsValidUbusRequest(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{
			name:  "session call",
			body:  `[{"jsonrpc":"2.0","id":1,"method":"call","params":["00000000000000000000000000000000","session","login",{"username":"root","password":"x"}]}]`,
			valid: true,
		},
		{
			name:  "extra elements ignored",
			body:  `[{"jsonrpc":"2.0","id":1,"method":"call","params":["s","iwinfo","info",{}]},{"bogus":true}]`,
			valid: true,
		},
		{
			name:  "string id",
			body:  `[{"jsonrpc":"2.0","id":"abc","method":"call","params":["s","system","board",{}]}]`,
			valid: true,
		},
		{
			name: "list method",
			body: `[{"jsonrpc":"2.0","id":1,"method":"list","params":["s","system","board",{}]}]`,
		},
		{
			name: "three params",
			body: `[{"jsonrpc":"2.0","id":1,"method":"call","params":["s","system","board"]}]`,
		},
		{
			name: "five params",
			body: `[{"jsonrpc":"2.0","id":1,"method":"call","params":["s","system","board",{},1]}]`,
		},
		{
			name: "params not an array",
			body: `[{"jsonrpc":"2.0","id":1,"method":"call","params":{"a":1}}]`,
		},
		{
			name: "wrong jsonrpc version",
			body: `[{"jsonrpc":"1.0","id":1,"method":"call","params":["s","system","board",{}]}]`,
		},
		{
			name: "missing jsonrpc",
			body: `[{"id":1,"method":"call","params":["s","system","board",{}]}]`,
		},
		{
			name: "bare object",
			body: `{"jsonrpc":"2.0","id":1,"method":"call","params":["s","system","board",{}]}`,
		},
		{
			name: "empty array",
			body: `[]`,
		},
		{
			name: "first element null",
			body: `[null]`,
		},
		{
			name: "first element string",
			body: `["call"]`,
		},
		{
			name: "scalar",
			body: `42`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidUbusRequest(decode(t, tt.body)))
		})
	}
}

func TestIsValidUbusRequestNil(t *testing.T) {
	assert.False(t, IsValidUbusRequest(nil))
}

func TestDecodeBodyPreservesNumbers(t *testing.T) {
	raw := `[{"jsonrpc":"2.0","id":12345678901234567890,"method":"call","params":["s","o","m",{"n":1.50}]}]`
	v := decode(t, raw)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":12345678901234567890`)
	assert.Contains(t, string(out), `"n":1.50`)
}

func TestDecodeBodyRejectsGarbage(t *testing.T) {
	for _, raw := range []string{``, `{`, `not json`, `[1] [2]`} {
		_, err := DecodeBody([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestDescribeCall(t *testing.T) {
	object, method := DescribeCall(decode(t, `[{"jsonrpc":"2.0","id":1,"method":"call","params":["s","iwinfo","assoclist",{}]}]`))
	assert.Equal(t, "iwinfo", object)
	assert.Equal(t, "assoclist", method)

	object, method = DescribeCall(decode(t, `{"a":1}`))
	assert.Empty(t, object)
	assert.Empty(t, method)
}

func TestUbusErrorFrom(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		isError bool
		raw     string
	}{
		{name: "result", body: `[{"jsonrpc":"2.0","id":1,"result":[0,{}]}]`},
		{name: "error object", body: `[{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Access denied"}}]`, isError: true, raw: `{"code":-32002,"message":"Access denied"}`},
		{name: "error string", body: `[{"error":"boom"}]`, isError: true, raw: `"boom"`},
		{name: "error null", body: `[{"error":null}]`},
		{name: "error false", body: `[{"error":false}]`},
		{name: "error zero", body: `[{"error":0}]`},
		{name: "error empty string", body: `[{"error":""}]`},
		{name: "error on second element", body: `[{"result":1},{"error":"x"}]`},
		{name: "object body", body: `{"0":{"error":"x"}}`},
		{name: "empty array", body: `[]`},
		{name: "invalid", body: `[{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := UbusErrorFrom([]byte(tt.body))
			assert.Equal(t, tt.isError, ok)
			if tt.isError {
				assert.JSONEq(t, tt.raw, string(raw))
			}
		})
	}
}
