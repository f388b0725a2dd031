package protocol

// Handle is a borrowed reference to a connection's outbound queue.
// Push must never block; it reports whether the frame was queued.
type Handle interface {
	Push(frame []byte) bool
}

// Mailbox is the channel-backed Handle owned by a connection supervisor
type Mailbox chan []byte

// NewMailbox creates a mailbox buffering up to size frames
func NewMailbox(size int) Mailbox {
	if size < 1 {
		size = 1
	}
	return make(Mailbox, size)
}

// Push queues the frame, dropping it when the mailbox is full
func (m Mailbox) Push(frame []byte) bool {
	select {
	case m <- frame:
		return true
	default:
		return false
	}
}
