// Package protocol defines the wire envelope shared by every connection.
//
// Every frame, inbound or outbound, is a JSON object of the form
//
//	{"header": "<tag>", "data": <tag-specific JSON>}
//
// Inbound tags: chat_message, join, read, create_room, rps.
// Outbound tags mirror them plus user_connected, user_disconnected,
// session, users and room.
//
// The package also defines Handle, the non-blocking push target that the
// chat router and the RPS engine borrow from a connection supervisor, and
// Mailbox, its channel-backed implementation. Delivery is best effort: a
// full mailbox drops the frame.
package protocol
