package chat

// User is a chat participant. Users are never removed while the process lives.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

// ChatMessage is a single private or room message. Only Read ever changes,
// and only from false to true.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
}

// PublicRoom is a named room whose membership only grows
type PublicRoom struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Users    []string      `json:"users"`
	Messages []ChatMessage `json:"messages"`
}

// HasUser reports whether id is a member of the room
func (r *PublicRoom) HasUser(id string) bool {
	for _, u := range r.Users {
		if u == id {
			return true
		}
	}
	return false
}

// JoinRequest is the payload of an inbound join frame. RoomID may name a
// user (private conversation) or a public room.
type JoinRequest struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
}

// CreateRoomRequest is the payload of an inbound create_room frame
type CreateRoomRequest struct {
	SenderID string `json:"sender_id"`
	Name     string `json:"name"`
}

// Outbound payloads of the room header

type roomCreated struct {
	Room PublicRoom `json:"room"`
}

type roomList struct {
	Rooms []PublicRoom `json:"rooms"`
}

type roomJoined struct {
	Joined [2]string `json:"joined"`
}

// Archive is the durable-write sink for chat state. Implementations must
// return immediately; failures are theirs to log.
type Archive interface {
	StoreMessage(msg ChatMessage, isRoom bool)
	StoreRoom(room PublicRoom, adminID string)
	StoreRoomMembership(roomID, userID string)
}
