package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Tophand Scheduling Backend",
    "description": "Day-plan scheduling with per-technician job limits, kit verification and supervisor override escalation",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/api/day-plans": {
      "post": {"tags": ["scheduling"], "summary": "Create day plan", "responses": {"201": {"description": "Created"}, "409": {"description": "Job limit exceeded"}}}
    },
    "/api/day-plans/{id}": {
      "get": {"tags": ["scheduling"], "summary": "Get day plan", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
    },
    "/api/day-plans/{id}/events": {
      "post": {"tags": ["scheduling"], "summary": "Schedule event", "responses": {"201": {"description": "Created"}, "409": {"description": "Job limit exceeded"}}}
    },
    "/api/day-plans/{id}/events/{eventId}": {
      "delete": {"tags": ["scheduling"], "summary": "Remove event", "responses": {"204": {"description": "Removed"}}}
    },
    "/api/schedule-events/{id}/crew": {
      "post": {"tags": ["scheduling"], "summary": "Assign crew", "responses": {"201": {"description": "Created"}}}
    },
    "/api/kits/{id}/verifications": {
      "post": {"tags": ["kits"], "summary": "Verify kit", "responses": {"201": {"description": "Created"}, "422": {"description": "Required item missing"}}}
    },
    "/api/kits/{id}/override-analytics": {
      "get": {"tags": ["kits"], "summary": "Override analytics", "responses": {"200": {"description": "OK"}}}
    },
    "/api/kit-overrides": {
      "post": {"tags": ["overrides"], "summary": "Create kit override", "responses": {"201": {"description": "Created"}}}
    },
    "/api/kit-overrides/voice": {
      "post": {"tags": ["overrides"], "summary": "Create kit override from a voice command", "responses": {"201": {"description": "Created"}}}
    },
    "/api/kit-overrides/{id}": {
      "get": {"tags": ["overrides"], "summary": "Get kit override", "responses": {"200": {"description": "OK"}}}
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
