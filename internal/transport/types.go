package transport

import "context"

// Update is one inbound chat event, normalized away from the concrete
// chat platform.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget addresses an outbound send.
type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Photo is an opaque rendered image plus caption. The scheduler treats this
// as the same sink shape as text with a different payload type.
type Photo struct {
	PNG     []byte
	Caption string
}

// Adapter is the narrow surface of the chat platform used by the rest of
// the bot. Implementations must be safe for concurrent sends.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo) (MessageRef, error)
}
