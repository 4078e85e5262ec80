package validation

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/poltergeist/conductor/pkg/config"
)

//go:embed schema.json
var pipelineSchema []byte

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(pipelineSchema))
	})
	return compiledSchema, compileErr
}

// ValidateSchema checks a raw YAML or JSON definition against the embedded
// JSON schema. Structural problems become error-level findings.
func ValidateSchema(data []byte) (*ValidationResult, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling pipeline schema: %w", err)
	}

	doc, err := config.ToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing pipeline definition: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validating pipeline definition: %w", err)
	}

	result := &ValidationResult{Valid: true}
	for _, e := range res.Errors() {
		result.AddError("", e.Field(), e.Description(), ValidationLevelError)
	}
	return result, nil
}
