// Package docs holds the OpenAPI description served at /swagger/*.
// Regenerate with: swag init -g cmd/api/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/documents": {
            "get": {
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "List documents",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.DocumentListResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/documents/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload a PDF",
                "parameters": [
                    {"type": "file", "description": "PDF document", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.DocumentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["documents"],
                "summary": "Download a document",
                "parameters": [
                    {"type": "integer", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Delete a document",
                "parameters": [
                    {"type": "integer", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handler.DocumentListResponse": {
            "type": "object",
            "properties": {
                "documents": {"type": "array", "items": {"$ref": "#/definitions/model.Document"}},
                "success": {"type": "boolean", "example": true}
            }
        },
        "handler.DocumentResponse": {
            "type": "object",
            "properties": {
                "document": {"$ref": "#/definitions/model.Document"},
                "message": {"type": "string", "example": "File uploaded successfully"},
                "success": {"type": "boolean", "example": true}
            }
        },
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "NOT_FOUND"},
                "message": {"type": "string", "example": "Document not found"},
                "request_id": {"type": "string"},
                "success": {"type": "boolean", "example": false}
            }
        },
        "handler.HealthResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Server is running"},
                "status": {"type": "string", "example": "ok"}
            }
        },
        "handler.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Document deleted successfully"},
                "success": {"type": "boolean", "example": true}
            }
        },
        "model.Document": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "filename": {"type": "string"},
                "filepath": {"type": "string"},
                "filesize": {"type": "integer"},
                "id": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Document Vault API",
	Description:      "Upload, list, download and delete PDF documents.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
