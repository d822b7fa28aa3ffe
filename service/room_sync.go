// Package service owns the client's room state: which room is current, the
// message feed, the online roster and the typing indicator. All of it is
// mutated by a single goroutine draining one inbound event queue, so channel
// callbacks, timers and user actions never race.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/achuthan-s/oasis-chat-client/internal/channel"
	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
)

// Phase is the room membership state.
type Phase int

const (
	// Unjoined: no current room, sending disabled.
	Unjoined Phase = iota
	// Joining: join emitted, history fetch in flight.
	Joining
	// Joined: room active, message input enabled.
	Joined
)

func (p Phase) String() string {
	switch p {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "unjoined"
	}
}

const cacheFallbackLimit = 50

// Renderer is the view the synchronizer drives. Implementations must accept
// calls from the synchronizer goroutine.
type Renderer interface {
	RoomList(rooms []domain.Room, currentID string)
	Feed(room domain.Room, msgs []domain.Message, selfID int)
	Message(m domain.Message, own bool)
	System(text string)
	Typing(username string, active bool)
	OnlineCount(n int)
}

// HistoryFetcher is the slice of the REST client the synchronizer needs.
type HistoryFetcher interface {
	Messages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// MessageCache mirrors rendered messages locally and backs the feed when a
// history fetch fails.
type MessageCache interface {
	Append(roomID string, m domain.Message) error
	Recent(roomID string, limit int) ([]domain.Message, error)
}

// RoomSync mediates between the realtime channel and the renderer.
type RoomSync struct {
	user       domain.User
	ch         channel.Channel
	history    HistoryFetcher
	cache      MessageCache
	renderer   Renderer
	logger     logger.Logger
	idleWindow time.Duration

	events  chan event
	done    chan struct{}
	stopped chan struct{}
	closing sync.Once

	// Everything below is owned by the run loop.
	rooms   []domain.Room
	current domain.Room
	phase   Phase
	epoch   int
	feed    []domain.Message
	roster  map[int]struct{}

	typingGen   int
	typingTimer *time.Timer

	remoteTypingGen   int
	remoteTypingTimer *time.Timer
}

func NewRoomSync(
	user domain.User,
	ch channel.Channel,
	history HistoryFetcher,
	cache MessageCache,
	renderer Renderer,
	logg logger.Logger,
	idleWindow time.Duration,
) *RoomSync {
	return &RoomSync{
		user:       user,
		ch:         ch,
		history:    history,
		cache:      cache,
		renderer:   renderer,
		logger:     logg.WithModule("sync"),
		idleWindow: idleWindow,
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		roster:     make(map[int]struct{}),
	}
}

// Start registers the channel handlers, opens the connection and starts the
// event loop. Handlers are registered exactly once, before the connection
// exists, per the channel contract.
func (s *RoomSync) Start() error {
	s.bindChannel()
	go s.run()
	if err := s.ch.Connect(); err != nil {
		return err
	}
	return nil
}

// SetRooms replaces the room list (server order preserved).
func (s *RoomSync) SetRooms(rooms []domain.Room) {
	s.post(evRooms{rooms: rooms})
}

// Join makes room the current room. Any previously joined room is left
// first; the room becomes usable once its history fetch settles.
func (s *RoomSync) Join(room domain.Room) {
	s.post(evJoinRequest{room: room})
}

// Send emits the message to the current room. Empty or whitespace-only text
// is dropped before anything is emitted or rendered. The message is not
// rendered locally; the feed updates when the server echoes it back on
// new_message.
func (s *RoomSync) Send(text string, encrypt bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.post(evSendRequest{text: text, encrypt: encrypt})
}

// InputChanged reports a local keystroke. The first call in a burst emits a
// typing-started event; a quiet gap of the idle window emits exactly one
// typing-stopped event. Every keystroke resets the idle timer.
func (s *RoomSync) InputChanged() {
	s.post(evInput{})
}

// Close leaves the current room, stops the loop and disconnects the channel.
func (s *RoomSync) Close() error {
	s.closing.Do(func() {
		s.post(evClose{})
		<-s.stopped
	})
	return s.ch.Disconnect()
}

// Snapshot is a copy of the loop-owned state, for observation.
type Snapshot struct {
	Phase   Phase
	Current domain.Room
	Rooms   []domain.Room
	Feed    []domain.Message
	Roster  map[int]struct{}
}

// View returns a consistent snapshot taken on the event loop.
func (s *RoomSync) View() Snapshot {
	reply := make(chan Snapshot, 1)
	s.post(evSnapshot{reply: reply})
	select {
	case snap := <-reply:
		return snap
	case <-s.stopped:
		return Snapshot{}
	}
}

func (s *RoomSync) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *RoomSync) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			if _, isClose := ev.(evClose); isClose {
				s.shutdown()
				return
			}
			s.handle(ev)
		}
	}
}

func (s *RoomSync) shutdown() {
	if s.phase != Unjoined {
		s.emitLeave(s.current)
	}
	s.stopTimers()
	close(s.done)
}

func (s *RoomSync) stopTimers() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.remoteTypingTimer != nil {
		s.remoteTypingTimer.Stop()
		s.remoteTypingTimer = nil
	}
}

func (s *RoomSync) handle(ev event) {
	switch ev := ev.(type) {
	case evRooms:
		s.rooms = ev.rooms
		s.renderer.RoomList(s.rooms, s.current.ID)

	case evJoinRequest:
		s.handleJoin(ev.room)

	case evHistory:
		s.handleHistory(ev)

	case evSendRequest:
		s.handleSend(ev)

	case evInput:
		s.handleInput()

	case evTypingIdle:
		s.handleTypingIdle(ev)

	case evNewMessage:
		s.handleNewMessage(ev.msg)

	case evNotice:
		s.renderer.System(ev.text)

	case evRoster:
		s.roster = make(map[int]struct{}, len(ev.users))
		for _, id := range ev.users {
			s.roster[id] = struct{}{}
		}
		s.renderer.OnlineCount(len(s.roster))

	case evOffline:
		if _, ok := s.roster[ev.userID]; ok {
			delete(s.roster, ev.userID)
			s.renderer.OnlineCount(len(s.roster))
		}

	case evUserTyping:
		s.handleUserTyping(ev.payload)

	case evRemoteTypingExpire:
		if ev.gen == s.remoteTypingGen {
			s.renderer.Typing("", false)
		}

	case evConnected:
		s.logger.Infof("channel connected")
		// The server forgets room membership across an outage, so a
		// joined room must be re-announced.
		if s.phase != Unjoined {
			s.emitJoin(s.current)
		}

	case evDisconnected:
		s.logger.Warnf("channel disconnected")

	case evSnapshot:
		ev.reply <- s.snapshot()
	}
}

func (s *RoomSync) handleJoin(room domain.Room) {
	if s.phase == Joined && s.current.ID == room.ID {
		return
	}
	if s.phase != Unjoined {
		s.emitLeave(s.current)
	}

	s.current = room
	s.phase = Joining
	s.epoch++
	s.feed = nil

	s.emitJoin(room)
	s.renderer.RoomList(s.rooms, room.ID)

	// History is fetched off the loop; the result carries the epoch so a
	// response that lands after another switch is recognized as stale.
	go func(epoch int, roomID string) {
		msgs, err := s.history.Messages(context.Background(), roomID)
		s.post(evHistory{epoch: epoch, roomID: roomID, msgs: msgs, err: err})
	}(s.epoch, room.ID)
}

func (s *RoomSync) handleHistory(ev evHistory) {
	if ev.epoch != s.epoch || ev.roomID != s.current.ID {
		s.logger.Debugf("discarding stale history for room %s", ev.roomID)
		return
	}

	if ev.err != nil {
		// Non-fatal: the room stays usable. Fall back to the local
		// cache so a flaky server still shows recent context.
		s.logger.Errorf("failed to load history for room %s: %v", ev.roomID, ev.err)
		cached, cacheErr := s.cache.Recent(ev.roomID, cacheFallbackLimit)
		if cacheErr != nil {
			s.logger.Errorf("cache read failed for room %s: %v", ev.roomID, cacheErr)
		}
		s.feed = cached
	} else {
		s.feed = ev.msgs
	}

	s.phase = Joined
	s.renderer.Feed(s.current, s.feed, s.user.ID)
}

func (s *RoomSync) handleSend(ev evSendRequest) {
	if s.phase != Joined {
		s.logger.Debugf("dropping send while %s", s.phase)
		return
	}
	err := s.ch.Emit(domain.EventSendMessage, domain.SendPayload{
		RoomID:   s.current.ID,
		UserID:   s.user.ID,
		Username: s.user.Username,
		Message:  ev.text,
		Encrypt:  ev.encrypt,
	})
	if err != nil {
		s.logger.Errorf("failed to send message: %v", err)
	}
}

func (s *RoomSync) handleInput() {
	if s.phase != Joined {
		return
	}
	s.emitTyping(true)

	s.typingGen++
	gen := s.typingGen
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.idleWindow, func() {
		s.post(evTypingIdle{gen: gen})
	})
}

func (s *RoomSync) handleTypingIdle(ev evTypingIdle) {
	// A keystroke that beat this event to the queue bumped the
	// generation; such a timeout is void.
	if ev.gen != s.typingGen {
		return
	}
	if s.phase != Joined {
		return
	}
	s.emitTyping(false)
}

func (s *RoomSync) handleNewMessage(msg domain.Message) {
	if s.phase == Unjoined {
		s.logger.Warnf("dropping message for room %s: no room joined", msg.RoomID)
		return
	}
	// Only one room is joined at a time; a message for any other room is a
	// protocol violation worth logging, never a crash.
	if msg.RoomID != "" && msg.RoomID != s.current.ID {
		s.logger.Warnf("protocol violation: message for room %s while in room %s",
			msg.RoomID, s.current.ID)
		return
	}

	s.feed = append(s.feed, msg)
	if err := s.cache.Append(s.current.ID, msg); err != nil {
		s.logger.Errorf("cache write failed: %v", err)
	}
	s.renderer.Message(msg, msg.UserID == s.user.ID)
}

func (s *RoomSync) handleUserTyping(p domain.TypingPayload) {
	s.renderer.Typing(p.Username, p.IsTyping)
	s.remoteTypingGen++
	if s.remoteTypingTimer != nil {
		s.remoteTypingTimer.Stop()
		s.remoteTypingTimer = nil
	}
	if !p.IsTyping {
		return
	}
	// Expire the indicator if the typer's stop notice never arrives.
	gen := s.remoteTypingGen
	s.remoteTypingTimer = time.AfterFunc(2*s.idleWindow, func() {
		s.post(evRemoteTypingExpire{gen: gen})
	})
}

func (s *RoomSync) emitJoin(room domain.Room) {
	err := s.ch.Emit(domain.EventJoinRoom, domain.JoinPayload{RoomID: room.ID, User: s.user})
	if err != nil {
		s.logger.Errorf("failed to emit join for room %s: %v", room.ID, err)
	}
}

func (s *RoomSync) emitLeave(room domain.Room) {
	err := s.ch.Emit(domain.EventLeaveRoom, domain.JoinPayload{RoomID: room.ID, User: s.user})
	if err != nil {
		s.logger.Errorf("failed to emit leave for room %s: %v", room.ID, err)
	}
}

func (s *RoomSync) emitTyping(active bool) {
	err := s.ch.Emit(domain.EventTyping, domain.TypingPayload{
		RoomID:   s.current.ID,
		Username: s.user.Username,
		IsTyping: active,
	})
	if err != nil {
		s.logger.Errorf("failed to emit typing update: %v", err)
	}
}

func (s *RoomSync) snapshot() Snapshot {
	snap := Snapshot{
		Phase:   s.phase,
		Current: s.current,
		Rooms:   append([]domain.Room(nil), s.rooms...),
		Feed:    append([]domain.Message(nil), s.feed...),
		Roster:  make(map[int]struct{}, len(s.roster)),
	}
	for id := range s.roster {
		snap.Roster[id] = struct{}{}
	}
	return snap
}
