package event

// MessageType tags a broadcast message.
type MessageType string

const (
	// MessageEvent announces a newly recorded entry.
	MessageEvent MessageType = "event"
	// MessageRemoved announces that an entry was removed from the history.
	MessageRemoved MessageType = "removed"
)

// Message is what subscribers receive.
type Message struct {
	Type  MessageType `json:"type"`
	Entry *Entry      `json:"entry,omitempty"`
	ID    string      `json:"id,omitempty"`
}

// Broadcaster is notified of every store change. Implementations are called
// with the store lock held and must not block.
type Broadcaster interface {
	Broadcast(Message)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(Message)

// Broadcast calls f(msg).
func (f BroadcasterFunc) Broadcast(msg Message) { f(msg) }

type discard struct{}

func (discard) Broadcast(Message) {}
