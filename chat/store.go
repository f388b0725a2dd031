package chat

// MessageStore holds the flat message log and the per-room logs.
//
// A room message is stored twice: once in the flat log and once in its
// room's list. The copies are independent; marking one read does not
// touch the other.
//
// MessageStore is owned by the Router goroutine and is not safe for
// concurrent use.
type MessageStore struct {
	log   []ChatMessage
	rooms map[string][]ChatMessage
}

// NewMessageStore creates an empty store
func NewMessageStore() *MessageStore {
	return &MessageStore{
		rooms: make(map[string][]ChatMessage),
	}
}

// Append adds a message to the flat log
func (s *MessageStore) Append(msg ChatMessage) {
	s.log = append(s.log, msg)
}

// AppendRoom adds a message to a room's own list
func (s *MessageStore) AppendRoom(roomID string, msg ChatMessage) {
	s.rooms[roomID] = append(s.rooms[roomID], msg)
}

// RoomMessages returns a copy of every message stored for the room,
// regardless of sender
func (s *MessageStore) RoomMessages(roomID string) []ChatMessage {
	messages := s.rooms[roomID]
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}

// Conversation returns every flat-log message exchanged between self and
// other, in log order. Messages received by self are marked read; the ones
// that flipped during this call are also returned in newlyRead.
func (s *MessageStore) Conversation(self, other string) (all, newlyRead []ChatMessage) {
	all = []ChatMessage{}
	for i := range s.log {
		msg := &s.log[i]
		switch {
		case msg.ReceiverID == self && msg.SenderID == other:
			if !msg.Read {
				msg.Read = true
				newlyRead = append(newlyRead, *msg)
			}
			all = append(all, *msg)
		case msg.ReceiverID == other && msg.SenderID == self:
			all = append(all, *msg)
		}
	}
	return all, newlyRead
}

// MarkRead flips the read flag of every flat-log message whose id is listed
// and returns the updated messages. Unknown ids are ignored.
func (s *MessageStore) MarkRead(ids []string) []ChatMessage {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var updated []ChatMessage
	for i := range s.log {
		if wanted[s.log[i].ID] {
			s.log[i].Read = true
			updated = append(updated, s.log[i])
		}
	}
	return updated
}

// Len returns the size of the flat log
func (s *MessageStore) Len() int {
	return len(s.log)
}
