package models

// CheckinEvent is the canonical "immediate feedback" event produced right
// after a check-in attempt, before or without a full snapshot. Both the
// biometric channel and the PIN pad path normalize into this shape, so
// downstream consumers never distinguish origin.
type CheckinEvent struct {
	ReaderName   string                 `json:"lector"`
	Identified   bool                   `json:"identificado"`
	EmployeeID   *int64                 `json:"empleadoId,omitempty"`
	FullName     *string                `json:"nombreCompleto,omitempty"`
	Action       string                 `json:"accion,omitempty"` // entrada, salida
	StatusCode   string                 `json:"codigo"`
	StatusType   string                 `json:"tipo"` // OK, INFO, ERROR
	ErrorMessage *string                `json:"mensajeError,omitempty"`
	ExtraData    map[string]interface{} `json:"datos,omitempty"`
}

// StatusType constants matching the backend response envelope
const (
	StatusOK    = "OK"
	StatusInfo  = "INFO"
	StatusError = "ERROR"
)

// Recommended action constants
const (
	ActionEntry       = "entrada"
	ActionExit        = "salida"
	ActionAllComplete = "ALL_COMPLETE"
	ActionNone        = "NO_ACTION"
)

// PinResponse is the PIN pad endpoint's response envelope. Non-2xx HTTP
// responses carry the same structure and must still be parsed.
type PinResponse struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"` // OK, ERROR, INFO
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// CardRequest is the PIN pad submission body.
type CardRequest struct {
	Card int64 `json:"tarjeta"`
}
