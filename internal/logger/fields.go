package logger

const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldUserID    = "user_id"
	FieldClientID  = "client_id"
	FieldRoomID    = "room_id"
	FieldThreadID  = "dm_thread_id"
	FieldMessageID = "message_id"
	FieldEvent     = "event"

	FieldService = "service"
)
