package irisfast

// Message is one inbound chat event from the Iris bridge.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender string       `json:"sender"`
	JSON   *MessageMeta `json:"json,omitempty"`
}

// MessageMeta carries the bridge's raw metadata block.
type MessageMeta struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	IsMine   bool   `json:"is_mine,omitempty"`
}

// UserID returns the stable sender id, falling back to the display name when
// the bridge sent no metadata.
func (m *Message) UserID() string {
	if m.JSON != nil && m.JSON.UserID != "" {
		return m.JSON.UserID
	}
	return m.Sender
}

// UserName returns the sender's display name.
func (m *Message) UserName() string {
	if m.JSON != nil && m.JSON.UserName != "" {
		return m.JSON.UserName
	}
	return m.Sender
}

// ReplyRequest is the outbound frame for both the REST and WS paths.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
