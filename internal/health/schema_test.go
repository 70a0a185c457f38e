package health

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TestHealthResponseMatchesSchema guards the wire shape of the /healthz
// JSON body against docs/schema/health-response-v1.schema.json.
func TestHealthResponseMatchesSchema(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "transport",
		Critical: true,
		Timeout:  time.Second,
		Check: func(ctx context.Context) CheckResult {
			return CheckResult{Status: StatusHealthy, Message: "ring mapped"}
		},
	})
	c.SetReady(true)

	resp := c.HealthResponse(context.Background(), true)

	buf, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal health response: %v", err)
	}

	validateAgainstSchema(t, schemaPath(t), buf)
}

func validateAgainstSchema(t *testing.T, schemaPath string, instance []byte) {
	t.Helper()

	var doc any
	if err := json.Unmarshal(instance, &doc); err != nil {
		t.Fatalf("unmarshal instance: %v", err)
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, bytes.NewReader(schemaData)); err != nil {
		t.Fatalf("add schema resource: %v", err)
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	if err := schema.Validate(doc); err != nil {
		t.Fatalf("health response failed schema validation: %v", err)
	}
}

func schemaPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "docs", "schema", "health-response-v1.schema.json")
}
