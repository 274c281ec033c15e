package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mailcore — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mailcore", "version": "v2" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "parameters": {
      "id": { "name": "id", "in": "path", "required": true, "schema": { "type": "string" } },
      "bodyType": { "name": "body_type", "in": "query", "schema": { "type": "string", "enum": ["plain", "html"] } },
      "waitForIndex": { "name": "wait_for_index", "in": "query", "schema": { "type": "boolean" } }
    },
    "schemas": {
      "MergePatch": {
        "type": "object",
        "required": ["current_state"],
        "properties": { "current_state": { "type": "object", "description": "fields as last read; compared before writing" } },
        "additionalProperties": { "description": "new field value; null or empty removes the field" }
      },
      "Failure": {
        "type": "object",
        "properties": { "error": { "type": "string" }, "kind": { "type": "string" }, "fields": { "type": "array", "items": { "type": "string" } } }
      }
    },
    "responses": {
      "Patched": { "description": "patched" },
      "Invalid": { "description": "malformed patch or schema error", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Failure" } } } },
      "Stale": { "description": "current_state no longer matches", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Failure" } } } },
      "Inconsistent": { "description": "patch would break a domain rule", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Failure" } } } },
      "NotFound": { "description": "not found" },
      "Unavailable": { "description": "backend unavailable" }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v2/messages": {
      "post": { "summary": "Create a draft", "parameters": [ { "$ref": "#/components/parameters/bodyType" } ], "responses": { "201": { "description": "draft created" }, "400": { "$ref": "#/components/responses/Invalid" }, "422": { "$ref": "#/components/responses/Inconsistent" } } }
    },
    "/api/v2/messages/{id}": {
      "parameters": [ { "$ref": "#/components/parameters/id" } ],
      "get": { "summary": "Get a message", "parameters": [ { "$ref": "#/components/parameters/bodyType" } ], "responses": { "200": { "description": "message" }, "404": { "$ref": "#/components/responses/NotFound" } } },
      "patch": {
        "summary": "Merge-patch a draft",
        "parameters": [ { "$ref": "#/components/parameters/bodyType" }, { "$ref": "#/components/parameters/waitForIndex" } ],
        "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/MergePatch" } } } },
        "responses": { "204": { "$ref": "#/components/responses/Patched" }, "400": { "$ref": "#/components/responses/Invalid" }, "404": { "$ref": "#/components/responses/NotFound" }, "409": { "$ref": "#/components/responses/Stale" }, "422": { "$ref": "#/components/responses/Inconsistent" }, "503": { "$ref": "#/components/responses/Unavailable" } }
      },
      "delete": { "summary": "Delete a message", "responses": { "204": { "description": "deleted" }, "404": { "$ref": "#/components/responses/NotFound" } } }
    },
    "/api/v2/messages/{id}/attachments": {
      "parameters": [ { "$ref": "#/components/parameters/id" } ],
      "post": { "summary": "Attach a file to a draft", "requestBody": { "content": { "multipart/form-data": { "schema": { "type": "object", "properties": { "file": { "type": "string", "format": "binary" }, "is_inline": { "type": "boolean" } } } } } }, "responses": { "201": { "description": "attachment" }, "422": { "$ref": "#/components/responses/Inconsistent" } } }
    },
    "/api/v2/messages/{id}/attachments/{sub_id}": {
      "get": { "summary": "Download attachment content", "responses": { "200": { "description": "content" }, "404": { "$ref": "#/components/responses/NotFound" } } },
      "delete": { "summary": "Remove an attachment", "responses": { "204": { "description": "removed" }, "404": { "$ref": "#/components/responses/NotFound" } } }
    },
    "/api/v2/contacts": {
      "post": { "summary": "Create a contact", "responses": { "201": { "description": "contact created" }, "400": { "$ref": "#/components/responses/Invalid" }, "422": { "$ref": "#/components/responses/Inconsistent" } } }
    },
    "/api/v2/contacts/{id}": {
      "parameters": [ { "$ref": "#/components/parameters/id" } ],
      "get": { "summary": "Get a contact", "responses": { "200": { "description": "contact" }, "404": { "$ref": "#/components/responses/NotFound" } } },
      "patch": {
        "summary": "Merge-patch a contact",
        "parameters": [ { "$ref": "#/components/parameters/waitForIndex" } ],
        "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/MergePatch" } } } },
        "responses": { "204": { "$ref": "#/components/responses/Patched" }, "400": { "$ref": "#/components/responses/Invalid" }, "404": { "$ref": "#/components/responses/NotFound" }, "409": { "$ref": "#/components/responses/Stale" }, "422": { "$ref": "#/components/responses/Inconsistent" }, "503": { "$ref": "#/components/responses/Unavailable" } }
      },
      "delete": { "summary": "Delete a contact", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/v2/contacts/{id}/{collection}": {
      "post": { "summary": "Add an email, address, im, phone, organization, identity or public key", "responses": { "201": { "description": "element" }, "422": { "$ref": "#/components/responses/Inconsistent" } } }
    },
    "/api/v2/contacts/{id}/{collection}/{sub_id}": {
      "delete": { "summary": "Remove a contact element", "responses": { "204": { "description": "removed" }, "404": { "$ref": "#/components/responses/NotFound" } } }
    },
    "/api/v2/identities": {
      "get": { "summary": "List the caller's sending identities", "responses": { "200": { "description": "identities" } } },
      "post": { "summary": "Register a sending address", "requestBody": { "content": { "application/json": { "schema": { "type": "object", "required": ["address"], "properties": { "address": { "type": "string", "format": "email" }, "display_name": { "type": "string" } } } } } }, "responses": { "201": { "description": "identity" }, "400": { "description": "invalid address" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
