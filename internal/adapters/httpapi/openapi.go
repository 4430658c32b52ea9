package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/episode-watch/internal/httpjson"
)

// handleOpenAPI décrit l'API du daemon (document minimal, maintenu à la main).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	str := map[string]any{"type": "string"}
	dateTime := map[string]any{"type": "string", "format": "date-time"}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "episode-watch daemon API",
			"version": buildinfo.Current().Version,
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": str,
						"code":  str,
					},
					"required": []any{"error"},
				},
				"TrackedItem": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":      map[string]any{"type": "string", "maxLength": 256},
						"title":   str,
						"poster":  map[string]any{"type": "string", "format": "uri"},
						"addedAt": dateTime,
					},
					"required": []any{"id"},
				},
				"ServiceState": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"isRunning":           map[string]any{"type": "boolean"},
						"lastSweepAt":         map[string]any{"type": "string", "format": "date-time", "nullable": true},
						"trackedCount":        map[string]any{"type": "integer"},
						"pendingAlertCount":   map[string]any{"type": "integer"},
						"cachedBaselineCount": map[string]any{"type": "integer"},
					},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"notificationPermission": map[string]any{"type": "string", "enum": []any{"default", "granted", "denied"}},
						"notifyNewEpisodes":      map[string]any{"type": "boolean"},
						"notifyUpcoming":         map[string]any{"type": "boolean"},
					},
				},
				"Envelope": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": str,
						"type": map[string]any{
							"type": "string",
							"enum": []any{
								"START_EPISODE_DETECTION", "STOP_EPISODE_DETECTION", "UPDATE_SUBSCRIBED_ANIME",
								"FORCE_EPISODE_CHECK", "GET_SERVICE_STATUS", "TEST_NOTIFICATION",
								"SERVICE_STATUS", "ACK", "UNSUPPORTED", "ERROR",
							},
						},
						"data": map[string]any{},
					},
					"required": []any{"id", "type"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health":  map[string]any{"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}}},
			"/api/v1/version": map[string]any{"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}}},
			"/api/v1/status": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/ServiceState")}},
			},
			"/api/v1/check": map[string]any{
				"post": map[string]any{"responses": map[string]any{"202": map[string]any{"description": "Accepted"}, "409": jsonErr}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{
					"parameters": []any{map[string]any{"name": "topics", "in": "query", "schema": str}},
					"responses": map[string]any{"200": map[string]any{
						"description": "Server-sent events",
						"content":     map[string]any{"text/event-stream": map[string]any{}},
					}},
				},
			},
			"/api/v1/bridge": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Envelope"), "400": jsonErr}},
			},
			"/api/v1/tracked": map[string]any{
				"get":  map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
				"post": map[string]any{"responses": map[string]any{"201": jsonOK("#/components/schemas/TrackedItem"), "400": jsonErr, "409": jsonErr}},
			},
			"/api/v1/tracked/{id}": map[string]any{
				"delete": map[string]any{"responses": map[string]any{"204": map[string]any{"description": "No Content"}, "404": jsonErr}},
			},
			"/api/v1/tracked/{id}/check": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/ServiceState"), "404": jsonErr, "409": jsonErr}},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Settings")}},
				"put": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Settings"), "400": jsonErr}},
			},
			"/api/v1/settings/permission": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "Granted"}, "403": jsonErr}},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}
