package models

// TelegramUpdate is the subset of the Telegram Bot API update payload Jym
// consumes. Updates without a text message are ignored upstream.
type TelegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage is an inbound Telegram chat message.
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Chat      TelegramChat  `json:"chat"`
	Text      string        `json:"text,omitempty"`
}

// TelegramUser identifies the sender of a Telegram message.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// TelegramChat identifies the chat a Telegram message belongs to.
type TelegramChat struct {
	ID int64 `json:"id"`
}

// LoopMessageWebhook is the LoopMessage (iMessage gateway) webhook body.
// Only message_inbound alerts carry a user turn; the rest are delivery
// receipts and are logged then dropped.
type LoopMessageWebhook struct {
	AlertType string `json:"alert_type"`
	Recipient string `json:"recipient"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// LoopMessage alert types.
const (
	LoopAlertMessageInbound = "message_inbound"
	LoopAlertMessageSent    = "message_sent"
	LoopAlertMessageFailed  = "message_failed"
)
