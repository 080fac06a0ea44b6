package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func jsonContent(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func dateParam(name, description string) object {
	return object{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      object{"type": "string", "format": "date", "pattern": `^\d{4}-\d{2}-\d{2}$`},
	}
}

var errorSchema = object{"$ref": "#/components/schemas/ErrorResponse"}

func summaryOperation(summary, description string, params ...object) object {
	return object{
		"get": object{
			"summary":     summary,
			"description": description,
			"parameters":  params,
			"responses": object{
				"200": jsonContent("One temperature summary", object{
					"type":     "array",
					"minItems": 1,
					"maxItems": 1,
					"items":    object{"$ref": "#/components/schemas/TemperatureSummary"},
				}),
				"400": jsonContent("Malformed date", errorSchema),
				"500": jsonContent("Data store unavailable", errorSchema),
			},
		},
	}
}

// openAPIDocument describes the routes registered by ClimateHandler
var openAPIDocument = object{
	"openapi": "3.0.0",
	"info": object{
		"title":       "Climate API",
		"description": "Read-only JSON API over daily precipitation and temperature observations of Hawaiian weather stations",
		"version":     "1.0.0",
	},
	"servers": []object{
		{"url": "http://localhost:8080", "description": "Local development server"},
	},
	"paths": object{
		"/api/v1.0/precipitation": object{
			"get": object{
				"summary": "Precipitation by date",
				"description": "Object keyed by date. When several stations report on the same date only one value is kept: " +
					"the one from the measurement stored last. null means that measurement had no precipitation reading.",
				"responses": object{
					"200": jsonContent("Precipitation keyed by date", object{
						"type":                 "object",
						"additionalProperties": object{"type": "number", "nullable": true},
					}),
					"500": jsonContent("Data store unavailable", errorSchema),
				},
			},
		},
		"/api/v1.0/stations": object{
			"get": object{
				"summary":     "Stations with measurements",
				"description": "Object mapping station id to station name. Stations without measurements are omitted.",
				"responses": object{
					"200": jsonContent("Station names keyed by station id", object{
						"type":                 "object",
						"additionalProperties": object{"type": "string"},
					}),
					"500": jsonContent("Data store unavailable", errorSchema),
				},
			},
		},
		"/api/v1.0/tobs": object{
			"get": object{
				"summary": "Temperature observations of the most active station",
				"description": "Object keyed by date covering the 365 days up to the most recent measurement, " +
					"for the station with the most measurements (ties go to the lowest station id).",
				"responses": object{
					"200": jsonContent("Temperature keyed by date", object{
						"type":                 "object",
						"additionalProperties": object{"type": "number"},
					}),
					"500": jsonContent("Empty dataset or data store unavailable", errorSchema),
				},
			},
		},
		"/api/v1.0/{start}": summaryOperation(
			"Temperature summary from a date",
			"MAX/MIN/AVG of tobs on or after start. end_date is the most recent measurement date (null for an empty dataset). "+
				"Temperatures are null when no measurement matches.",
			dateParam("start", "First date, inclusive"),
		),
		"/api/v1.0/{start}/{end}": summaryOperation(
			"Temperature summary over a date range",
			"MAX/MIN/AVG of tobs between start and end, both inclusive. Temperatures are null when no measurement matches.",
			dateParam("start", "First date, inclusive"),
			dateParam("end", "Last date, inclusive"),
		),
		"/health": object{
			"get": object{
				"summary": "Health check",
				"responses": object{
					"200": jsonContent("Data store reachable", object{"type": "object"}),
					"503": jsonContent("Data store unreachable", object{"type": "object"}),
				},
			},
		},
		"/metrics": object{
			"get": object{
				"summary": "Prometheus metrics",
				"responses": object{
					"200": object{
						"description": "Prometheus metrics in text format",
						"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
					},
				},
			},
		},
	},
	"components": object{
		"schemas": object{
			"TemperatureSummary": object{
				"type": "object",
				"properties": object{
					"start_date": object{"type": "string", "format": "date"},
					"end_date":   object{"type": "string", "format": "date", "nullable": true},
					"temp_max":   object{"type": "number", "nullable": true},
					"temp_min":   object{"type": "number", "nullable": true},
					"temp_avg":   object{"type": "number", "nullable": true},
				},
			},
			"ErrorResponse": object{
				"type": "object",
				"properties": object{
					"error":   object{"type": "string"},
					"message": object{"type": "string"},
					"code":    object{"type": "integer"},
				},
			},
		},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Climate API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openAPIDocument)
}
