package api

import (
	"slices"

	"github.com/bekaIva/instant-ai-translator/internal/menu"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the API. The operation enum of
// POST /v1/process lists the operations of the current menu.
func buildOpenAPIDoc(items []menu.MenuItemConfig) map[string]any {
	ops := make([]string, 0, len(items))
	for _, item := range items {
		if !slices.Contains(ops, item.Operation) {
			ops = append(ops, item.Operation)
		}
	}

	bearer := []any{map[string]any{"BearerAuth": []string{}}}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Instant AI",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/v1/process": map[string]any{
				"post": map[string]any{
					"operationId": "processText",
					"summary":     "Run an operation on selected text",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": processRequestSchema(ops),
							},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Terminal outcome, failures included"},
						"400": map[string]any{"description": "Bad request"},
						"403": map[string]any{"description": "Insufficient scope"},
						"504": map[string]any{"description": "No outcome within the process timeout"},
					},
					"security": bearer,
				},
			},
			"/v1/menu": map[string]any{
				"get": map[string]any{
					"operationId": "getMenu",
					"summary":     "Enabled menu items in display order",
					"responses":   map[string]any{"200": map[string]any{"description": "Menu"}},
					"security":    bearer,
				},
				"put": map[string]any{
					"operationId": "setMenu",
					"summary":     "Replace the configured menu",
					"responses": map[string]any{
						"200": map[string]any{"description": "Menu stored"},
						"400": map[string]any{"description": "Invalid items"},
					},
					"security": bearer,
				},
			},
			"/v1/history": map[string]any{
				"get": map[string]any{
					"operationId": "getHistory",
					"summary":     "Recent processing outcomes",
					"responses": map[string]any{
						"200": map[string]any{"description": "History"},
						"404": map[string]any{"description": "History disabled"},
					},
					"security": bearer,
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func processRequestSchema(ops []string) map[string]any {
	operation := map[string]any{"type": "string"}
	if len(ops) > 0 {
		operation["enum"] = ops
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"text", "operation"},
		"properties": map[string]any{
			"text":      map[string]any{"type": "string", "minLength": 1},
			"operation": operation,
			"read_only": map[string]any{"type": "boolean"},
		},
	}
}
