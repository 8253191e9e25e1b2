// internal/api/schema.go
package api

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	stderrors "insight-orchestrator/internal/common/errors"
)

// querySchema validates the POST /v1/query body before anything touches the
// pipeline. Tenant ids exclude ":" because it is the cache key separator.
const querySchema = `{
	"type": "object",
	"properties": {
		"tenantId": {
			"type": "string",
			"minLength": 1,
			"maxLength": 128,
			"pattern": "^[^:]+$"
		},
		"text": {
			"type": "string",
			"minLength": 1,
			"maxLength": 2000
		},
		"priority": {
			"type": "string",
			"enum": ["high", "normal", "low"]
		},
		"requestedMode": {
			"type": "string",
			"enum": ["quick", "deep"]
		}
	},
	"required": ["tenantId", "text"],
	"additionalProperties": false
}`

var queryValidator = gojsonschema.NewStringLoader(querySchema)

// ValidateQueryBody checks a raw request body against the query schema and
// returns a malformed-input error listing every violation.
func ValidateQueryBody(body []byte) error {
	result, err := gojsonschema.Validate(queryValidator, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return stderrors.NewMalformedInputError(err.Error())
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return stderrors.NewMalformedInputError(strings.Join(msgs, "; "))
}
