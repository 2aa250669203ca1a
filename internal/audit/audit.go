package audit

import (
	"context"

	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// Audit actions for the chat relay.
const (
	ActionConnect     = "chat.connect"
	ActionDisconnect  = "chat.disconnect"
	ActionSendMessage = "chat.send_message"
	ActionSendFailed  = "chat.send_failed"
	ActionMarkRead    = "chat.mark_read"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger. A zero userID
// is left out, e.g. for connections that have not sent anything yet.
func Log(ctx context.Context, action string, userID int64, msg string) {
	LogWithDetail(ctx, action, userID, "", msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action string, userID int64, detail string, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action)
	if userID != 0 {
		evt = evt.Int64(log.FieldUserID, userID)
	}
	if detail != "" {
		evt = evt.Str(FieldDetail, detail)
	}
	evt.Msg(msg)
}
