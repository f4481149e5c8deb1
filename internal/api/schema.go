package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const createTopicSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "minLength": 1}
  },
  "required": ["title"]
}`

const updateStatusSchema = `{
  "type": "object",
  "properties": {
    "status": {"type": "integer", "enum": [0, 1]}
  }
}`

const completeQuizSchema = `{
  "type": "object",
  "properties": {
    "answers": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    },
    "score": {}
  }
}`

type schemas struct {
	createTopic  *gojsonschema.Schema
	updateStatus *gojsonschema.Schema
	completeQuiz *gojsonschema.Schema
}

func loadSchemas() (*schemas, error) {
	var s schemas
	for _, def := range []struct {
		name   string
		source string
		dst    **gojsonschema.Schema
	}{
		{"create topic", createTopicSchema, &s.createTopic},
		{"update status", updateStatusSchema, &s.updateStatus},
		{"complete quiz", completeQuizSchema, &s.completeQuiz},
	} {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def.source))
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", def.name, err)
		}
		*def.dst = compiled
	}
	return &s, nil
}

// validate checks body against schema and returns a client-facing message
// when it does not conform.
func validate(schema *gojsonschema.Schema, body []byte) (string, bool) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return "Request body must be a JSON object.", false
	}
	if result.Valid() {
		return "", true
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.Field()+": "+e.Description())
	}
	return strings.Join(msgs, "; "), false
}
