package server

import (
	"encoding/json"
	"net/http"

	"mixdown/command"
	"mixdown/logger"
	"mixdown/model"
)

// ProtocolVersion is the wire contract version. Requests carrying another
// version are refused with IncompatibleVersion rather than partially
// interpreted.
const ProtocolVersion = 1

// SubmitRequest is the body of POST /api/command.
type SubmitRequest struct {
	ProtocolVersion  int             `json:"protocolVersion"`
	RequestID        string          `json:"requestId,omitempty"` // client-supplied, deduplicated for a bounded window
	ExpectedRevision *uint64         `json:"expectedRevision,omitempty"`
	Command          command.Command `json:"command"`
}

// SubmitResponse acknowledges an applied command (or undo/redo step).
type SubmitResponse struct {
	Revision uint64           `json:"revision"`
	Applied  bool             `json:"applied"`
	Command  *command.Command `json:"command,omitempty"`
}

// SessionRequest is the body of POST /api/session.
type SessionRequest struct {
	ProtocolVersion int    `json:"protocolVersion"`
	ClientName      string `json:"clientName"`
	Secret          string `json:"secret"`
}

// SessionResponse carries the issued token.
type SessionResponse struct {
	Token string `json:"token"`
}

// ErrorPayload is the uniform error body.
type ErrorPayload struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// wsEnvelope frames every websocket message.
type wsEnvelope struct {
	ProtocolVersion int                `json:"protocolVersion"`
	Type            string             `json:"type"` // "event" or "error"
	StreamID        uint64             `json:"streamId,omitempty"`
	Event           *model.ChangeEvent `json:"event,omitempty"`
	Error           *ErrorPayload      `json:"error,omitempty"`
}

func checkVersion(v int) error {
	if v != ProtocolVersion {
		return model.NewError(model.ErrIncompatibleVersion,
			"protocol version %d is not supported, this engine speaks %d", v, ProtocolVersion)
	}
	return nil
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrInvalidReference:
		return http.StatusNotFound
	case model.ErrConstraintViolation, model.ErrRoutingCycle:
		return http.StatusUnprocessableEntity
	case model.ErrConflict, model.ErrDuplicate:
		return http.StatusConflict
	case model.ErrProtocol, model.ErrIncompatibleVersion:
		return http.StatusBadRequest
	case model.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := model.CodeOf(err)
	payload := ErrorPayload{Code: code, Message: err.Error()}
	if e, ok := err.(*model.Error); ok {
		payload.Message = e.Message
	}
	writeJSON(w, statusFor(code), payload)
}
