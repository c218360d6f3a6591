package pipeline

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/finding.schema.json
var findingSchemaJSON []byte

const findingSchemaURL = "mem://schemas/finding.schema.json"

var (
	findingSchemaOnce sync.Once
	findingSchema     *jsonschema.Schema
	findingSchemaErr  error
)

// compiledFindingSchema compiles the embedded finding schema once.
func compiledFindingSchema() (*jsonschema.Schema, error) {
	findingSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(findingSchemaJSON))
		if err != nil {
			findingSchemaErr = fmt.Errorf("decode finding schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(findingSchemaURL, doc); err != nil {
			findingSchemaErr = fmt.Errorf("register finding schema: %w", err)
			return
		}
		findingSchema, findingSchemaErr = c.Compile(findingSchemaURL)
		if findingSchemaErr != nil {
			findingSchemaErr = fmt.Errorf("compile finding schema: %w", findingSchemaErr)
		}
	})
	return findingSchema, findingSchemaErr
}
