package conversation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const startConversationSchema = `{
  "type": "object",
  "required": ["conversationId", "endpointId"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "endpointId": {"type": "string", "minLength": 1}
  }
}`

const conversationUpdateSchema = `{
  "type": "object",
  "required": ["endpointId"],
  "properties": {
    "endpointId": {"type": "string", "minLength": 1}
  }
}`

const directLineTokenSchema = `{
  "type": "object",
  "required": ["token"],
  "properties": {
    "token": {"type": "string", "minLength": 1},
    "streamUrl": {"type": "string"},
    "conversationId": {"type": "string"}
  }
}`

var responseSchemas = map[string]*gojsonschema.Schema{
	OpStartConversation:     mustSchema(startConversationSchema),
	OpConversationUpdate:    mustSchema(conversationUpdateSchema),
	OpFetchDirectLineObject: mustSchema(directLineTokenSchema),
}

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid response schema: %v", err))
	}
	return schema
}

// validateResponse checks body against the schema registered for op.
// Operations without a schema accept any body.
func validateResponse(op string, body []byte) error {
	schema, ok := responseSchemas[op]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("unexpected response shape: %s", strings.Join(msgs, "; "))
}
