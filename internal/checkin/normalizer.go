package checkin

import (
	"asistencia/checador-terminal/internal/models"
)

// Normalize converts a PIN pad response into the canonical CheckinEvent
// shape so downstream consumers never distinguish the PIN path from the
// biometric channel. Identified is true iff the payload carries both an
// employee id and a full name, independent of the code class: informational
// and even error responses can legitimately carry identified-employee
// context that the terminal must still display. When the backend omits the
// action, fallbackAction (the last known recommended action) is used.
func Normalize(resp *models.PinResponse, readerName, fallbackAction string) models.CheckinEvent {
	event := models.CheckinEvent{
		ReaderName: readerName,
		StatusCode: resp.Code,
		StatusType: resp.Type,
		Action:     fallbackAction,
		ExtraData:  resp.Data,
	}

	if id, ok := dataInt64(resp.Data, "empleadoId"); ok {
		event.EmployeeID = &id
	}
	if name, ok := dataString(resp.Data, "nombreCompleto"); ok {
		event.FullName = &name
	}
	if action, ok := dataString(resp.Data, "accion"); ok {
		event.Action = action
	}

	event.Identified = event.EmployeeID != nil && event.FullName != nil

	if resp.Type == models.StatusError && resp.Message != "" {
		msg := resp.Message
		event.ErrorMessage = &msg
	}

	return event
}

// dataInt64 reads a numeric field from the untyped response payload.
// JSON numbers decode as float64; ids may also arrive as int64 when the
// payload was built in-process.
func dataInt64(data map[string]interface{}, key string) (int64, bool) {
	if data == nil {
		return 0, false
	}
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func dataString(data map[string]interface{}, key string) (string, bool) {
	if data == nil {
		return "", false
	}
	if v, ok := data[key].(string); ok && v != "" {
		return v, true
	}
	return "", false
}
