// Package schemacheck validates the raw stack descriptor against the
// embedded JSON schema.
package schemacheck

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

//go:embed stack.schema.json
var stackSchema []byte

// Adapter implements ports.SchemaPort.
type Adapter struct {
	schema *gojsonschema.Schema
}

// New compiles the embedded descriptor schema.
func New() (*Adapter, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(stackSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling descriptor schema: %w", err)
	}
	return &Adapter{schema: schema}, nil
}

// Check converts the YAML document to JSON and validates it. Every schema
// violation is listed in the returned domain.ValidationError.
func (a *Adapter) Check(raw []byte) error {
	docJSON, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return fmt.Errorf("converting descriptor to JSON: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(docJSON), []byte("null")) {
		docJSON = []byte("{}")
	}

	result, err := a.schema.Validate(gojsonschema.NewBytesLoader(docJSON))
	if err != nil {
		return fmt.Errorf("validating descriptor schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var violations *multierror.Error
	for _, desc := range result.Errors() {
		violations = multierror.Append(violations, errors.New(desc.String()))
	}
	return &domain.ValidationError{Subject: "descriptor schema", Err: violations}
}
