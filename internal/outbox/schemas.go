package outbox

import "example.com/swimrun/internal/events"

const sessionLoggedSchema = `{
  "type": "object",
  "title": "SessionLogged",
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "distance_m": {"type": "number", "minimum": 0},
    "type": {"type": "string", "enum": ["swim", "run"]},
    "source": {"type": "string"},
    "logged_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "tenant_id", "user_id", "date", "distance_m", "type", "logged_at"],
  "additionalProperties": false
}`

// schemaCatalog maps an event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	events.TypeSessionLogged: sessionLoggedSchema,
}
