// Package docs holds the swagger description of the run status API.
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
        "/runs": {
            "get": {
                "description": "Get every pipeline run in the ledger, newest first",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List all runs",
                "responses": {
                    "200": {
                        "description": "List of runs",
                        "schema": {
                            "type": "array",
                            "items": {"$ref": "#/definitions/model.RunRecord"}
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "description": "Retrieve the spec, status and metrics of a run",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "Run details",
                        "schema": {"$ref": "#/definitions/model.RunRecord"}
                    },
                    "400": {
                        "description": "Invalid run ID",
                        "schema": {"type": "object", "additionalProperties": true}
                    },
                    "404": {
                        "description": "Run not found",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "description": "Retrieve per-subhalo failures (missing, transient, failed) and run-level errors",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "Run errors",
                        "schema": {"type": "object", "additionalProperties": true}
                    },
                    "400": {
                        "description": "Invalid run ID",
                        "schema": {"type": "object", "additionalProperties": true}
                    },
                    "404": {
                        "description": "Run not found",
                        "schema": {"type": "object", "additionalProperties": true}
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        }
    },
    "definitions": {
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "id": {"type": "string"},
                "metrics": {"$ref": "#/definitions/model.RunMetrics"},
                "spec": {"$ref": "#/definitions/model.RunSpec"},
                "status": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "model.RunSpec": {
            "type": "object",
            "properties": {
                "analysis": {"type": "string"},
                "output": {"type": "string"},
                "redshift": {"type": "number"},
                "snapshot": {"type": "integer"},
                "work_list": {"type": "string"},
                "workers": {"type": "integer"}
            }
        },
        "model.RunMetrics": {
            "type": "object",
            "properties": {
                "analysis": {"type": "string"},
                "duration": {"type": "integer"},
                "end_time": {"type": "string"},
                "outputs": {"type": "array", "items": {"type": "string"}},
                "padding": {"type": "integer"},
                "run_id": {"type": "string"},
                "stages": {"type": "object", "additionalProperties": true},
                "start_time": {"type": "string"},
                "status_count": {"type": "object", "additionalProperties": {"type": "integer"}},
                "work_items": {"type": "integer"},
                "workers": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Subhalo Pipeline API",
	Description:      "Read-only status of subhalo analysis runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
