package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "No Dues API",
        "description": "Multi-department clearance workflow for graduating students",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Staff and admin authentication"},
        {"name": "Clearance", "description": "Form submission, decisions and reapplication"},
        {"name": "Certificates", "description": "Certificate verification and download"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a staff or admin user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/clearance": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Submit a new no dues form",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitClearanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Active form already exists"}
                }
            },
            "get": {
                "tags": ["Clearance"],
                "summary": "List clearance forms (admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "school", "in": "query", "type": "string"},
                    {"name": "course", "in": "query", "type": "string"},
                    {"name": "registrationNo", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/clearance/lookup": {
            "get": {
                "tags": ["Clearance"],
                "summary": "Get the latest form status for a registration number",
                "parameters": [
                    {"name": "registrationNo", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No form found"}
                }
            }
        },
        "/clearance/{id}/status": {
            "get": {
                "tags": ["Clearance"],
                "summary": "Get form status with per-department detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Form not found"}
                }
            }
        },
        "/clearance/{id}/action": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Approve or reject a pending department row",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Row already decided or form completed"}
                }
            }
        },
        "/clearance/{id}/reapply": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Reset a rejected department back to pending",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReapplyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Reapplication limit reached"},
                    "409": {"description": "Department is not rejected"},
                    "429": {"description": "Cooldown active"}
                }
            }
        },
        "/clearance/{id}/history": {
            "get": {
                "tags": ["Clearance"],
                "summary": "List the reapplication history of a form",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/departments/{department}/pending": {
            "get": {
                "tags": ["Clearance"],
                "summary": "List forms awaiting a department's decision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "department", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/verify": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Verify a certificate token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/certificates/download": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Download a certificate PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF file"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "SubmitClearanceRequest": {
            "type": "object",
            "required": ["registrationNo", "studentName", "parentName", "school", "course", "branch", "contactNo", "personalEmail", "admissionYear", "passingYear"],
            "properties": {
                "registrationNo": {"type": "string"},
                "studentName": {"type": "string"},
                "parentName": {"type": "string"},
                "school": {"type": "string"},
                "course": {"type": "string"},
                "branch": {"type": "string"},
                "contactNo": {"type": "string"},
                "personalEmail": {"type": "string"},
                "collegeEmail": {"type": "string"},
                "admissionYear": {"type": "integer"},
                "passingYear": {"type": "integer"}
            }
        },
        "ActionRequest": {
            "type": "object",
            "required": ["department", "action"],
            "properties": {
                "department": {"type": "string"},
                "action": {"type": "string", "enum": ["approve", "reject"]},
                "reason": {"type": "string"}
            }
        },
        "ReapplyRequest": {
            "type": "object",
            "required": ["department", "message"],
            "properties": {
                "department": {"type": "string"},
                "message": {"type": "string"},
                "editedFields": {"type": "object"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
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
