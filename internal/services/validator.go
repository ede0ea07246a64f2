package services

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/watchcoin/backend/internal/apperror"
)

//go:embed schemas/*.json
var webhookSchemas embed.FS

// Validator checks provider webhook bodies against their JSON schema before
// any signature work or job is queued.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles one schema per provider from the embedded schemas
// directory. The file name without extension is the provider name.
func NewValidator() (*Validator, error) {
	entries, err := webhookSchemas.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		provider := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := webhookSchemas.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://watchcoin.dev/schemas/webhooks/" + provider + ".json"
		schemas[provider], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile webhook schema %q: %w", provider, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// ValidateWebhook rejects bodies that are not JSON or do not match the
// provider's schema. Providers without a schema only need valid JSON.
func (v *Validator) ValidateWebhook(provider string, body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperror.Validation("body", "webhook body is not valid JSON")
	}
	schema, ok := v.schemas[provider]
	if !ok {
		return nil
	}
	if err := schema.Validate(doc); err != nil {
		return &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "webhook body does not match the provider schema",
			Field:   "body",
			Cause:   err,
		}
	}
	return nil
}
