package spec

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// ValidationResult is the outcome of validating one document.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	OpenAPI string `json:"openapi,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Validate checks raw YAML or JSON against the OpenAPI 3 structure. External
// references are not followed. Example values are not validated.
func Validate(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(raw) == 0 {
		return errors.New("validate: document payload is empty")
	}

	loader := &openapi3.Loader{
		Context:               ctx,
		IsExternalRefsAllowed: false,
	}

	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return fmt.Errorf("validate: load document: %w", err)
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	return nil
}

// ValidateDocument validates a loaded document and reports the result.
func ValidateDocument(ctx context.Context, doc *Document) ValidationResult {
	result := ValidationResult{OpenAPI: doc.Root().Get("openapi").String()}

	if err := Validate(ctx, doc.Raw); err != nil {
		result.Error = err.Error()

		return result
	}

	result.Valid = true

	return result
}
