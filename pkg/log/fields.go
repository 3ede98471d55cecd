package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Connection (control and data channels)
	FieldConnID     = "conn_id"
	FieldRemoteAddr = "remote_addr"
	FieldTransport  = "transport"

	// Session
	FieldRoom     = "room"
	FieldUsername = "username"
	FieldMsgType  = "msg_type"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
