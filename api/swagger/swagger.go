package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Beamer Screen Groups API",
        "description": "Screen group membership, CSV reconciliation, targeting preview and group health.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "ScreenGroups", "description": "Named, publisher-scoped screen collections"},
        {"name": "ScreenGroupMembers", "description": "Membership changes, CSV upload and export"},
        {"name": "Targeting", "description": "Eligibility preview, health and flights"},
        {"name": "Screens", "description": "Group lookups from a screen"}
    ],
    "paths": {
        "/screen-groups": {
            "get": {
                "tags": ["ScreenGroups"],
                "summary": "List screen groups",
                "parameters": [
                    {"name": "org_id", "in": "query", "type": "string"},
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "archived", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["ScreenGroups"],
                "summary": "Create screen group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScreenGroupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name already used", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}": {
            "get": {
                "tags": ["ScreenGroups"],
                "summary": "Get screen group with online and offline counts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["ScreenGroups"],
                "summary": "Update screen group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateScreenGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name already used", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["ScreenGroups"],
                "summary": "Delete screen group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "force", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Group has members", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/archive": {
            "post": {
                "tags": ["ScreenGroups"],
                "summary": "Archive screen group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/unarchive": {
            "post": {
                "tags": ["ScreenGroups"],
                "summary": "Restore archived screen group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name already used", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/members": {
            "get": {
                "tags": ["ScreenGroupMembers"],
                "summary": "List group members",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["online", "offline"]},
                    {"name": "city", "in": "query", "type": "string"},
                    {"name": "region", "in": "query", "type": "string"},
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["ScreenGroupMembers"],
                "summary": "Add screens to group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MemberIDsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown screen", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["ScreenGroupMembers"],
                "summary": "Remove screens from group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MemberIDsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/members/csv": {
            "post": {
                "tags": ["ScreenGroupMembers"],
                "summary": "Add members from CSV",
                "description": "Accepts text/csv, multipart field file, or JSON {\"csv\": \"...\"}. Header must contain screen_id, code, name or screen_name.",
                "consumes": ["text/csv", "multipart/form-data", "application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed CSV", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Upload too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/members/export": {
            "get": {
                "tags": ["ScreenGroupMembers"],
                "summary": "Export group members",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/screen-groups/{id}/health": {
            "get": {
                "tags": ["Targeting"],
                "summary": "Screen group health rollup",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/{id}/flights": {
            "get": {
                "tags": ["Targeting"],
                "summary": "Flights targeting the group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screen-groups/targeting-preview": {
            "post": {
                "tags": ["Targeting"],
                "summary": "Preview eligible screens for selected groups",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TargetingPreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown group", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screens/{id}/screen-groups": {
            "get": {
                "tags": ["Screens"],
                "summary": "Groups a screen belongs to",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/screens/{id}/available-screen-groups": {
            "get": {
                "tags": ["Screens"],
                "summary": "Groups a screen can still join",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateScreenGroupRequest": {
            "type": "object",
            "properties": {
                "org_id": {"type": "string"},
                "name": {"type": "string", "maxLength": 100},
                "description": {"type": "string", "maxLength": 500}
            },
            "required": ["org_id", "name"]
        },
        "UpdateScreenGroupRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "maxLength": 100},
                "description": {"type": "string", "maxLength": 500},
                "is_archived": {"type": "boolean"}
            }
        },
        "MemberIDsRequest": {
            "type": "object",
            "properties": {
                "screen_ids": {"type": "array", "items": {"type": "string"}, "maxItems": 5000}
            },
            "required": ["screen_ids"]
        },
        "TargetingPreviewRequest": {
            "type": "object",
            "properties": {
                "group_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "page_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
