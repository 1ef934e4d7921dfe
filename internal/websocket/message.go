package websocket

import "github.com/dukerupert/fampulse/internal/recordstore"

// Message types of the realtime protocol. Clients send subscribe and
// unsubscribe; the server answers with subscribed, unsubscribed or error
// and then streams change messages for each live subscription.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeChange       = "change"
	TypeError        = "error"
	TypeClosing      = "closing"
)

// Message is one realtime protocol frame. Sub is the client's own name for
// a subscription and is echoed on every reply and change.
type Message struct {
	Type   string              `json:"type"`
	Sub    string              `json:"sub,omitempty"`
	Table  string              `json:"table,omitempty"`
	Filter *recordstore.Filter `json:"filter,omitempty"`
	Change *recordstore.Change `json:"change,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// ErrorMessage builds an error reply for sub.
func ErrorMessage(sub string, err error) Message {
	return Message{Type: TypeError, Sub: sub, Error: err.Error()}
}
