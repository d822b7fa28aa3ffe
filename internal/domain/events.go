package domain

// Realtime channel event names. These are the wire contract shared with the
// server and must not be renamed.
const (
	// client -> server
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"

	// server -> client
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventNewMessage  = "new_message"
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventUserOffline = "user_offline"
	EventOnlineUsers = "online_users"
	EventUserTyping  = "user_typing"
)

// JoinPayload is emitted on join_room and leave_room.
type JoinPayload struct {
	RoomID string `json:"room_id"`
	User   User   `json:"user_data"`
}

// SendPayload is emitted on send_message. Encrypt is forwarded verbatim; the
// client performs no cryptography itself.
type SendPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Encrypt  bool   `json:"encrypt"`
}

// TypingPayload is emitted on typing and received on user_typing.
type TypingPayload struct {
	RoomID   string `json:"room_id,omitempty"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// NoticePayload is received on user_joined and user_left: a system line plus
// the user it concerns.
type NoticePayload struct {
	User    User   `json:"user"`
	Message string `json:"message"`
}

// RosterPayload is received on online_users. The roster is a full
// replacement, never a patch.
type RosterPayload struct {
	Users []int `json:"users"`
}

// OfflinePayload is received on user_offline when a user's connection drops.
type OfflinePayload struct {
	UserID int `json:"user_id"`
}
