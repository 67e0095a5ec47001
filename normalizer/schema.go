package normalizer

import "github.com/xeipuuv/gojsonschema"

// paymentCompleteSchema is the wire contract for canonical completion
// messages. Messages that claim the canonical type but fail the schema
// are dropped silently, like any other malformed inbound message.
const paymentCompleteSchema = `{
  "type": "object",
  "properties": {
    "type": {"const": "payment_complete"},
    "txHash": {"type": "string", "minLength": 1},
    "chainId": {"type": ["integer", "null"]},
    "orderId": {"type": "string"},
    "memo": {"type": "string"}
  },
  "required": ["type", "txHash"],
  "anyOf": [
    {"required": ["orderId"]},
    {"required": ["memo"]}
  ]
}`

var canonicalSchema = gojsonschema.NewStringLoader(paymentCompleteSchema)

// validCanonical checks a raw message against the canonical schema.
func validCanonical(raw []byte) bool {
	result, err := gojsonschema.Validate(canonicalSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return false
	}
	return result.Valid()
}
