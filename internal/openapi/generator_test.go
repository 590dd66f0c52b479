package openapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestGenerateSpec_ValidOpenAPI(t *testing.T) {
	doc := GenerateSpec("http://localhost:8090")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil {
		t.Fatal("Info is nil")
	}
	if doc.Info.Title != "Gatehouse API" {
		t.Errorf("Info.Title = %q, want %q", doc.Info.Title, "Gatehouse API")
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8090" {
		t.Errorf("Servers not set correctly: %+v", doc.Servers)
	}
}

func TestGenerateSpec_NoBaseURL(t *testing.T) {
	doc := GenerateSpec("")
	if len(doc.Servers) != 0 {
		t.Errorf("Servers = %+v, want none without a base URL", doc.Servers)
	}
}

func TestGenerateSpec_SecurityScheme(t *testing.T) {
	doc := GenerateSpec("")

	if doc.Components == nil {
		t.Fatal("Components is nil")
	}
	bearer, ok := doc.Components.SecuritySchemes["bearerAuth"]
	if !ok {
		t.Fatal("bearerAuth security scheme not found")
	}
	if bearer.Value.Type != "http" {
		t.Errorf("bearerAuth.Type = %q, want %q", bearer.Value.Type, "http")
	}
	if bearer.Value.Scheme != "bearer" {
		t.Errorf("bearerAuth.Scheme = %q, want %q", bearer.Value.Scheme, "bearer")
	}
	if len(doc.Security) != 1 {
		t.Errorf("Security requirements count = %d, want 1", len(doc.Security))
	}
}

func TestGenerateSpec_LoginPathIsPublic(t *testing.T) {
	doc := GenerateSpec("")

	sessionPath := doc.Paths.Find("/api/v1/session")
	if sessionPath == nil {
		t.Fatal("Path /api/v1/session not found")
	}
	if sessionPath.Post == nil {
		t.Fatal("POST operation missing for session")
	}
	// Login must opt out of the global bearer requirement.
	if sessionPath.Post.Security == nil || len(*sessionPath.Post.Security) != 0 {
		t.Errorf("login security = %v, want an empty requirement list", sessionPath.Post.Security)
	}
	if sessionPath.Post.RequestBody == nil {
		t.Error("login request body missing")
	}
	if sessionPath.Delete == nil {
		t.Error("DELETE operation missing for session")
	}
}

func TestGenerateSpec_KeyPaths(t *testing.T) {
	doc := GenerateSpec("")

	keysPath := doc.Paths.Find("/api/v1/keys")
	if keysPath == nil {
		t.Fatal("Path /api/v1/keys not found")
	}
	if keysPath.Get == nil {
		t.Error("GET operation missing for keys")
	}
	if keysPath.Post == nil {
		t.Error("POST operation missing for keys")
	}

	for _, path := range []string{
		"/api/v1/keys/{keyId}",
		"/api/v1/keys/{keyId}/revoke",
		"/api/v1/keys/{keyId}/usage",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("Path %q not found", path)
		}
	}

	revoke := doc.Paths.Find("/api/v1/keys/{keyId}/revoke")
	if revoke.Post == nil {
		t.Fatal("POST operation missing for revoke")
	}
	if len(revoke.Post.Parameters) != 1 || revoke.Post.Parameters[0].Value.Name != "keyId" {
		t.Errorf("revoke parameters = %+v, want single keyId path param", revoke.Post.Parameters)
	}
}

func TestGenerateSpec_RolePaths(t *testing.T) {
	doc := GenerateSpec("")

	rolesPath := doc.Paths.Find("/api/v1/roles")
	if rolesPath == nil {
		t.Fatal("Path /api/v1/roles not found")
	}
	if rolesPath.Get == nil {
		t.Error("GET operation missing for roles")
	}
	// The role catalog is read-only.
	if rolesPath.Post != nil {
		t.Error("POST operation should not exist for roles")
	}

	rolePath := doc.Paths.Find("/api/v1/roles/{roleId}")
	if rolePath == nil || rolePath.Get == nil {
		t.Fatal("GET /api/v1/roles/{roleId} not found")
	}
}

func TestGenerateSpec_ErrorResponseSchema(t *testing.T) {
	doc := GenerateSpec("")

	errSchema, ok := doc.Components.Schemas["ErrorResponse"]
	if !ok {
		t.Fatal("ErrorResponse schema not found in components")
	}
	errorProp, ok := errSchema.Value.Properties["error"]
	if !ok {
		t.Fatal("error property not found in ErrorResponse schema")
	}
	for _, field := range []string{"code", "message", "context"} {
		if _, ok := errorProp.Value.Properties[field]; !ok {
			t.Errorf("%s property not found in error object", field)
		}
	}
}

func TestGenerateSpec_ComponentSchemas(t *testing.T) {
	doc := GenerateSpec("")

	for _, name := range []string{"APIKey", "UsageStats", "Role"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("Schema %q not found in components", name)
		}
	}

	// Key listings carry metadata only, never verifier material.
	key := doc.Components.Schemas["APIKey"]
	for _, secret := range []string{"key_hash", "lookup_id", "api_key"} {
		if _, ok := key.Value.Properties[secret]; ok {
			t.Errorf("APIKey schema should not expose %q", secret)
		}
	}
	if _, ok := key.Value.Properties["key_prefix"]; !ok {
		t.Error("APIKey schema should expose key_prefix")
	}
}

func TestHandler_ServesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/openapi.json", nil)

	Handler()(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi field = %v, want 3.1.0", doc["openapi"])
	}
}
