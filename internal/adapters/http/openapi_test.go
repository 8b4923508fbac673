package http_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// findOpenAPISpec locates api/openapi.yaml by walking up from the test directory.
func findOpenAPISpec(t *testing.T) string {
	t.Helper()
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()
	data, err := os.ReadFile(findOpenAPISpec(t))
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	return spec
}

func TestOpenAPISpec(t *testing.T) {
	spec := loadSpec(t)
	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/bbox",
		"/v1/tiles",
		"/v1/detections",
		"/v1/detections/text",
		"/v1/detections/points",
		"/v1/detections/{id}",
		"/v1/detections/{id}/features",
		"/v1/results/reduce",
		"/v1/prompts/points",
		"/api/v1/predict",
		"/graphql",
	}
	for _, path := range expectedPaths {
		if item := spec.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found", path)
		}
	}

	expectedSchemas := []string{
		"APIError",
		"Pagination",
		"BBox",
		"Extent",
		"TextDetectionRequest",
		"PointDetectionRequest",
		"SubmitRequest",
		"DetectionRun",
		"TileSummary",
		"PointPromptSet",
		"FeatureCollection",
	}
	for _, schema := range expectedSchemas {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}
}

func TestOpenAPILegacyRouteDeprecated(t *testing.T) {
	spec := loadSpec(t)
	item := spec.Paths.Find("/api/v1/predict")
	if item == nil || item.Post == nil {
		t.Fatal("legacy predict route missing")
	}
	if !item.Post.Deprecated {
		t.Error("expected /api/v1/predict to be marked deprecated")
	}
}

func TestOpenAPIInfo(t *testing.T) {
	spec := loadSpec(t)
	if spec.Info.Title != "GeoDetect API" {
		t.Errorf("expected title 'GeoDetect API', got %q", spec.Info.Title)
	}
	if spec.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", spec.Info.Version)
	}
	if len(spec.Servers) == 0 {
		t.Error("expected at least one server")
	}
}
