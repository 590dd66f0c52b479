// Package openapi generates the OpenAPI document for the management API.
package openapi

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// GenerateSpec builds the OpenAPI 3.1 document describing the Gatehouse
// management API: sessions, API key lifecycle, usage statistics, and the
// role catalog.
func GenerateSpec(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Gatehouse API",
			Description: "Access-control service for the HireDeck platform: session authentication, API key management, and usage reporting.",
			Version:     "1.0.0",
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	// A single bearer scheme carries both credential types; Gatehouse
	// routes on the hd_live_ format tag.
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "http",
			Scheme:      "bearer",
			Description: "Session JWT or API key (hd_live_...)",
		},
	}
	doc.Security = openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["APIKey"] = apiKeySchema()
	doc.Components.Schemas["UsageStats"] = usageStatsSchema()
	doc.Components.Schemas["Role"] = roleSchema()

	doc.Paths = openapi3.NewPaths()
	addSessionPaths(doc)
	addKeyPaths(doc)
	addRolePaths(doc)

	return doc
}

// Handler returns an http.HandlerFunc serving the generated spec as JSON.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := GenerateSpec("")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

func addSessionPaths(doc *openapi3.T) {
	loginBody := &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.NewContentWithJSONSchema(&openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"email":    stringProp(),
					"password": stringProp(),
				},
				Required: []string{"email", "password"},
			}),
		},
	}

	tokenSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"session_token": stringProp(),
				"token_type":    stringProp(),
				"expires_in":    intProp(),
				"principal_id":  intProp(),
				"email":         stringProp(),
				"name":          stringProp(),
			},
		},
	}

	doc.Paths.Set("/api/v1/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Log in",
			Description: "Authenticate with email and password; returns a bearer session token.",
			OperationID: "login",
			Security:    &openapi3.SecurityRequirements{},
			RequestBody: loginBody,
			Responses:   newResponses("200", "Session token", tokenSchema),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Log out",
			OperationID: "logout",
			Responses:   newResponses("200", "Session invalidated", successSchema()),
		},
	})

	doc.Paths.Set("/api/v1/me", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Current identity",
			Description: "Returns the authenticated principal and how it authenticated.",
			OperationID: "me",
			Responses: newResponses("200", "Authenticated identity", &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
			}),
		},
	})
}

func addKeyPaths(doc *openapi3.T) {
	keyRef := openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)

	createBody := &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.NewContentWithJSONSchema(&openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"name": stringProp(),
					"permissions": {
						Value: &openapi3.Schema{
							Type:  &openapi3.Types{"array"},
							Items: stringProp(),
						},
					},
					"rate_limit": intProp(),
					"expires_at": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				},
				Required: []string{"name", "permissions"},
			}),
		},
	}

	createdSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"object"},
			Description: "Includes the plaintext api_key exactly once; it cannot be retrieved again.",
			Properties: openapi3.Schemas{
				"id":         intProp(),
				"api_key":    stringProp(),
				"key_prefix": stringProp(),
				"name":       stringProp(),
			},
		},
	}

	doc.Paths.Set("/api/v1/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "List API keys",
			Description: "Lists the caller's keys. Secrets and verifiers are never returned.",
			OperationID: "list_keys",
			Responses: newResponses("200", "API keys", &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"resource": {
							Value: &openapi3.Schema{
								Type:  &openapi3.Types{"array"},
								Items: keyRef,
							},
						},
					},
				},
			}),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Create an API key",
			OperationID: "create_key",
			RequestBody: createBody,
			Responses:   newResponses("201", "Created key with one-time plaintext secret", createdSchema),
		},
	})

	doc.Paths.Set("/api/v1/keys/{keyId}/revoke", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Revoke an API key",
			Description: "Soft-revokes the key; it stays listed but no longer validates.",
			OperationID: "revoke_key",
			Parameters:  keyIDParams(),
			Responses:   newResponses("200", "Key revoked", successSchema()),
		},
	})

	doc.Paths.Set("/api/v1/keys/{keyId}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Delete an API key",
			OperationID: "delete_key",
			Parameters:  keyIDParams(),
			Responses:   newResponses("200", "Key deleted", successSchema()),
		},
	})

	doc.Paths.Set("/api/v1/keys/{keyId}/usage", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "API key usage statistics",
			OperationID: "key_usage",
			Parameters:  keyIDParams(),
			Responses:   newResponses("200", "Usage statistics", openapi3.NewSchemaRef("#/components/schemas/UsageStats", nil)),
		},
	})
}

func addRolePaths(doc *openapi3.T) {
	roleRef := openapi3.NewSchemaRef("#/components/schemas/Role", nil)

	doc.Paths.Set("/api/v1/roles", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"roles"},
			Summary:     "List roles",
			OperationID: "list_roles",
			Responses: newResponses("200", "Roles", &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"resource": {
							Value: &openapi3.Schema{
								Type:  &openapi3.Types{"array"},
								Items: roleRef,
							},
						},
					},
				},
			}),
		},
	})

	doc.Paths.Set("/api/v1/roles/{roleId}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"roles"},
			Summary:     "Get a role",
			OperationID: "get_role",
			Parameters: openapi3.Parameters{
				{Value: &openapi3.Parameter{
					Name: "roleId", In: "path", Required: true,
					Schema: intProp(),
				}},
			},
			Responses: newResponses("200", "Role", roleRef),
		},
	})
}

// --- schema helpers ---

func stringProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func intProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}
}

func boolProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func successSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": boolProp(),
				"message": stringProp(),
			},
		},
	}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": {
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": stringProp(),
							"context": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
}

func apiKeySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":               intProp(),
				"key_prefix":       stringProp(),
				"name":             stringProp(),
				"permissions":      {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: stringProp()}},
				"rate_limit":       intProp(),
				"is_active":        boolProp(),
				"total_requests":   intProp(),
				"monthly_requests": intProp(),
				"expires_at":       {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"last_used_at":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"created_at":       {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
}

func usageStatsSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"total_requests":   intProp(),
				"monthly_requests": intProp(),
				"hourly_usage":     intProp(),
				"hourly_limit":     intProp(),
				"last_used_at":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"recent":           {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}}},
			},
		},
	}
}

func roleSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":          intProp(),
				"name":        stringProp(),
				"description": stringProp(),
				"is_active":   boolProp(),
				"permissions": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: stringProp()}},
			},
		},
	}
}

func keyIDParams() openapi3.Parameters {
	return openapi3.Parameters{
		{Value: &openapi3.Parameter{
			Name: "keyId", In: "path", Required: true,
			Schema: intProp(),
		}},
	}
}

func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)

	unauthorizedDesc := "Authentication required or invalid credentials"
	responses.Set("401", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &unauthorizedDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	forbiddenDesc := "Missing required permission"
	responses.Set("403", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &forbiddenDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	return responses
}
