// Package chat implements presence and conversation routing.
//
// The Router is a single goroutine that owns every piece of chat state:
// the user roster, the borrowed delivery handle of each connected session,
// each session's conversation focus, the public rooms and the message store.
// Connection supervisors talk to it only through its methods, which enqueue
// commands on one ordered channel:
//
//	router := chat.NewRouter(relay, logger)
//	go router.Run(ctx)
//
//	router.Connect(chat.User{ID: id, Username: name}, mailbox)
//	history, err := router.Join(ctx, id, otherID)
//
// Focus
//
// Each session points at exactly one conversation, either another user or a
// room. Connect points a session at itself; Join replaces the pointer.
// Private messages are relayed to the sender's focus target and echoed back
// to the sender. Room messages go to every member whose focus is the room.
//
// Read receipts
//
// Joining a private conversation marks every message addressed to the
// joiner as read. The messages that flipped are pushed to the other
// participant in a read frame. The inbound read frame does the same for an
// explicit list of message ids.
//
// Persistence
//
// Every message, room and new room membership is handed to an Archive.
// Archive calls never block the router and their failures never reach it.
package chat
