package service

import (
	"encoding/json"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

// event is anything the synchronizer loop processes: user actions, timer
// expirations and decoded channel events all land on the same queue.
type event interface{}

type evRooms struct{ rooms []domain.Room }

type evJoinRequest struct{ room domain.Room }

type evSendRequest struct {
	text    string
	encrypt bool
}

type evInput struct{}

type evTypingIdle struct{ gen int }

type evRemoteTypingExpire struct{ gen int }

type evHistory struct {
	epoch  int
	roomID string
	msgs   []domain.Message
	err    error
}

type evNewMessage struct{ msg domain.Message }

type evNotice struct{ text string }

type evRoster struct{ users []int }

type evOffline struct{ userID int }

type evUserTyping struct{ payload domain.TypingPayload }

type evConnected struct{}

type evDisconnected struct{}

type evSnapshot struct{ reply chan Snapshot }

type evClose struct{}

// bindChannel registers one handler per server event. Each handler decodes
// the payload and forwards a typed event to the loop; malformed payloads are
// logged and dropped so a misbehaving server cannot take the client down.
func (s *RoomSync) bindChannel() {
	s.ch.On(domain.EventConnect, func(json.RawMessage) {
		s.post(evConnected{})
	})
	s.ch.On(domain.EventDisconnect, func(json.RawMessage) {
		s.post(evDisconnected{})
	})
	s.ch.On(domain.EventNewMessage, func(data json.RawMessage) {
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Errorf("malformed new_message payload: %v", err)
			return
		}
		s.post(evNewMessage{msg: msg})
	})
	s.ch.On(domain.EventUserJoined, func(data json.RawMessage) {
		s.postNotice(domain.EventUserJoined, data)
	})
	s.ch.On(domain.EventUserLeft, func(data json.RawMessage) {
		s.postNotice(domain.EventUserLeft, data)
	})
	s.ch.On(domain.EventOnlineUsers, func(data json.RawMessage) {
		var p domain.RosterPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Errorf("malformed online_users payload: %v", err)
			return
		}
		s.post(evRoster{users: p.Users})
	})
	s.ch.On(domain.EventUserOffline, func(data json.RawMessage) {
		var p domain.OfflinePayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Errorf("malformed user_offline payload: %v", err)
			return
		}
		s.post(evOffline{userID: p.UserID})
	})
	s.ch.On(domain.EventUserTyping, func(data json.RawMessage) {
		var p domain.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Errorf("malformed user_typing payload: %v", err)
			return
		}
		s.post(evUserTyping{payload: p})
	})
}

func (s *RoomSync) postNotice(eventName string, data json.RawMessage) {
	var p domain.NoticePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Errorf("malformed %s payload: %v", eventName, err)
		return
	}
	s.post(evNotice{text: p.Message})
}
