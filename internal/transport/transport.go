// Package transport abstracts the outbound chat messaging channel used to
// notify users about generation outcomes. The pipeline depends only on the
// Chat interface; the Telegram implementation is wired in at startup, and a
// log-only implementation stands in when no bot token is configured (local
// development).
package transport

import "context"

// Chat delivers a message to an external user identified by chat id.
//
// Implementations should be safe for concurrent use. A returned error means
// the user did not (observably) receive the message; callers decide whether
// that fails the surrounding operation.
type Chat interface {
	Send(ctx context.Context, chatID int64, text string) error
}
