package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "IEP Peruano Chino - Registros API",
        "description": "Pre-registration and student account activation service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Registro", "description": "Public student registration flow"},
        {"name": "Preregistros", "description": "Admin pre-registration management"},
        {"name": "Auth", "description": "Admin authentication"}
    ],
    "paths": {
        "/registro/validar": {
            "post": {
                "tags": ["Registro"],
                "summary": "Validate an enrollment code against a DNI",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown DNI"},
                    "410": {"description": "Pre-registration expired"},
                    "422": {"description": "Code does not match or was tampered"}
                }
            }
        },
        "/registro/iniciar": {
            "post": {
                "tags": ["Registro"],
                "summary": "Begin registration completion",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartRegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Verification code sent", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registro/confirmar": {
            "post": {
                "tags": ["Registro"],
                "summary": "Confirm the verification code and activate the account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmRegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Account activated"},
                    "410": {"description": "Verification code expired"},
                    "422": {"description": "Verification code does not match"}
                }
            }
        },
        "/registro/reenviar": {
            "post": {
                "tags": ["Registro"],
                "summary": "Resend the verification code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResendRequest"}}
                ],
                "responses": {
                    "200": {"description": "Code resent"},
                    "429": {"description": "Cooldown or daily cap reached"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate an administrator",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/admin/preregistros": {
            "get": {
                "tags": ["Preregistros"],
                "summary": "List pre-registrations",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "estado", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Preregistros"],
                "summary": "Create a single pre-registration",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePreRegistrationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "DNI already registered"}
                }
            }
        },
        "/admin/preregistros/{id}": {
            "get": {
                "tags": ["Preregistros"],
                "summary": "Get pre-registration detail",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admin/preregistros/{id}/estado": {
            "patch": {
                "tags": ["Preregistros"],
                "summary": "Apply a lifecycle action",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EstadoRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/admin/preregistros/importar": {
            "post": {
                "tags": ["Preregistros"],
                "summary": "Bulk import pre-registrations from CSV",
                "security": [{"Bearer": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Import report", "schema": {"$ref": "#/definitions/ImportReport"}}
                }
            }
        },
        "/admin/preregistros/exportar": {
            "get": {
                "tags": ["Preregistros"],
                "summary": "Export pre-registrations as CSV or PDF",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "formato", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "estado", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/admin/preregistros/stats": {
            "get": {
                "tags": ["Preregistros"],
                "summary": "Aggregate pre-registration stats",
                "security": [{"Bearer": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "definitions": {
        "ValidateRequest": {
            "type": "object",
            "required": ["codigo_estudiante", "dni"],
            "properties": {
                "codigo_estudiante": {"type": "string", "example": "20-12345678-6"},
                "dni": {"type": "string", "example": "12345678"}
            }
        },
        "StartRegistrationRequest": {
            "type": "object",
            "required": ["codigo_estudiante", "dni", "email", "telefono", "password"],
            "properties": {
                "codigo_estudiante": {"type": "string"},
                "dni": {"type": "string"},
                "email": {"type": "string"},
                "telefono": {"type": "string"},
                "password": {"type": "string", "minLength": 8}
            }
        },
        "ConfirmRegistrationRequest": {
            "type": "object",
            "required": ["dni", "codigo"],
            "properties": {
                "dni": {"type": "string"},
                "codigo": {"type": "string", "minLength": 6, "maxLength": 6}
            }
        },
        "ResendRequest": {
            "type": "object",
            "required": ["dni"],
            "properties": {
                "dni": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreatePreRegistrationRequest": {
            "type": "object",
            "required": ["nombre", "apellido", "dni"],
            "properties": {
                "nombre": {"type": "string"},
                "apellido": {"type": "string"},
                "dni": {"type": "string"}
            }
        },
        "EstadoRequest": {
            "type": "object",
            "required": ["accion"],
            "properties": {
                "accion": {"type": "string", "enum": ["suspender", "cancelar", "restablecer", "reactivar"]},
                "dias_extension": {"type": "integer"}
            }
        },
        "ImportReport": {
            "type": "object",
            "properties": {
                "procesados": {"type": "integer"},
                "creados": {"type": "integer"},
                "errores": {"type": "array", "items": {"type": "object"}},
                "dnis_duplicados": {"type": "array", "items": {"type": "string"}},
                "dnis_existentes": {"type": "array", "items": {"type": "object"}}
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
                "pagination": {"$ref": "#/definitions/Pagination"}
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
