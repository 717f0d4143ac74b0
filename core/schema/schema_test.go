package schema_test

import (
	"testing"

	"github.com/fleetware/iot-provisioner/core/schema"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"uuid": { "type": "string", "minLength": 1 }
	},
	"required": ["uuid"]
}`

func TestValidateBytes(t *testing.T) {
	validator, err := schema.NewValidator(map[string]string{"request": testSchema})
	if err != nil {
		t.Fatalf("cannot create validator: %v", err)
	}

	if err := validator.ValidateBytes([]byte(`{"uuid":"abc"}`), "request"); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if err := validator.ValidateBytes([]byte(`{}`), "request"); err == nil {
		t.Error("document without uuid accepted")
	}
	if err := validator.ValidateBytes([]byte(`{"uuid":""}`), "request"); err == nil {
		t.Error("document with empty uuid accepted")
	}
	if err := validator.ValidateBytes([]byte(`not json`), "request"); err == nil {
		t.Error("invalid JSON accepted")
	}
	if err := validator.ValidateBytes([]byte(`{}`), "nonsuch"); err == nil {
		t.Error("unknown schema id accepted")
	}
}

func TestInvalidSchema(t *testing.T) {
	if _, err := schema.NewValidator(map[string]string{"broken": `{"type": 42}`}); err == nil {
		t.Error("invalid schema accepted")
	}
}
