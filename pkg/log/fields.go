package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Service
	FieldService = "service"

	// Chat
	FieldSessionID  = "session_id"
	FieldRoomID     = "chat_room_id"
	FieldMessageID  = "message_id"
	FieldEnvelopeID = "envelope_id"
	FieldGateway    = "gateway"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
