package audit

import (
	"context"

	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
)

// Audit actions for the relay.
const (
	ActionCreateRoom     = "relay.create_room"
	ActionJoinRoom       = "relay.join_room"
	ActionJoinRejected   = "relay.join_rejected"
	ActionLeaveRoom      = "relay.leave_room"
	ActionCloseRoom      = "relay.close_room"
	ActionMemberTimedOut = "relay.member_timed_out"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, roomName, userName, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoom, roomName).
		Str(log.FieldUsername, userName).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, roomName, userName, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoom, roomName).
		Str(log.FieldUsername, userName).
		Str(FieldDetail, detail).
		Msg(msg)
}
