package domain

// User is the profile returned by the auth endpoints and carried on
// join/leave payloads.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Session pairs the opaque auth token with the user it belongs to.
// Exactly one session is active per client instance.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Room is an immutable snapshot from the server. The client keeps rooms in
// server order and never mutates them.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Message is a chat message, either fetched from history or pushed over the
// realtime channel. Timestamps are server-assigned ISO strings. The encrypted
// flag is an opaque passthrough; the server broadcasts it as the string
// "true" or "false".
type Message struct {
	ID        string `json:"id,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Type      string `json:"message_type,omitempty"`
	Timestamp string `json:"timestamp"`
	Encrypted string `json:"encrypted,omitempty"`
}

// IsEncrypted reports whether the server flagged this message as encrypted.
func (m Message) IsEncrypted() bool {
	return m.Encrypted == "true"
}
