package webui

import "github.com/swaggo/swag"

// docTemplate is the OpenAPI document served by the Swagger UI route,
// covering the read-only browser endpoints registered in webui.go.
const docTemplate = `{
  "schemes": {{ marshal .Schemes }},
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{escape .Description}}",
    "version": "{{.Version}}"
  },
  "host": "{{.Host}}",
  "basePath": "{{.BasePath}}",
  "paths": {
    "/api/assets/{id}": {
      "get": {
        "summary": "Asset residency",
        "parameters": [
          {"name": "id", "in": "path", "type": "string", "required": true, "description": "asset id, hex"},
          {"name": "lod", "in": "query", "type": "integer", "description": "LOD to test (default 0)"}
        ],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/assets/{id}/digest": {
      "get": {
        "summary": "Asset data digest",
        "parameters": [
          {"name": "id", "in": "path", "type": "string", "required": true, "description": "asset id, hex"},
          {"name": "lod", "in": "query", "type": "integer", "description": "LOD to digest (default 0)"}
        ],
        "responses": {"200": {"description": "OK"}, "404": {"description": "not resident"}}
      }
    },
    "/api/memory": {
      "get": {
        "summary": "Memory stats",
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/stats": {
      "get": {
        "summary": "Engine counters",
        "responses": {"200": {"description": "OK"}}
      }
    }
  }
}`

// swaggerInfo registers the document with the swag runtime the Swagger UI
// handler reads from.
var swaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "streamforge asset browser",
	Description:      "Read-only residency and memory introspection for the streaming engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(swaggerInfo.InstanceName(), swaggerInfo)
}
