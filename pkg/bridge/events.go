// Copyright 2024-2026 Aiku AI

package bridge

// ChatEventType enumerates the events emitted by the IRC session.
type ChatEventType int

const (
	ChatMessage ChatEventType = iota
	ChatJoin
	ChatPart
	ChatQuit
	ChatNickChange
	ChatNotice
	ChatPrivateMessage
	ChatRegistered
	ChatError
	ChatDisconnected
)

var chatEventNames = map[ChatEventType]string{
	ChatMessage:        "message",
	ChatJoin:           "join",
	ChatPart:           "part",
	ChatQuit:           "quit",
	ChatNickChange:     "nick",
	ChatNotice:         "notice",
	ChatPrivateMessage: "pm",
	ChatRegistered:     "registered",
	ChatError:          "error",
	ChatDisconnected:   "disconnected",
}

func (t ChatEventType) String() string {
	if name, ok := chatEventNames[t]; ok {
		return name
	}
	return "unknown"
}

// ChatEvent is a single event from the IRC session. Which fields are set
// depends on Type:
//
//	ChatMessage         From, To, Text
//	ChatJoin            Channel, Nick
//	ChatPart            Channel, Nick, Reason
//	ChatQuit            Nick, Reason
//	ChatNickChange      Nick (old), NewNick
//	ChatNotice          Nick, To, Text
//	ChatPrivateMessage  From, Text
//	ChatRegistered      Text (welcome message)
//	ChatError           Text
//	ChatDisconnected    none
type ChatEvent struct {
	Type    ChatEventType
	From    string
	To      string
	Channel string
	Nick    string
	NewNick string
	Reason  string
	Text    string
}

// BusEventType enumerates the events emitted by the MQTT session.
type BusEventType int

const (
	BusConnected BusEventType = iota
	BusDisconnected
	BusMessage
)

func (t BusEventType) String() string {
	switch t {
	case BusConnected:
		return "connected"
	case BusDisconnected:
		return "disconnected"
	case BusMessage:
		return "message"
	default:
		return "unknown"
	}
}

// BusEvent is a single event from the MQTT session. Topic and Payload are
// only set for BusMessage; Err may be set for BusDisconnected.
type BusEvent struct {
	Type    BusEventType
	Topic   string
	Payload []byte
	Err     error
}

// ChatSession is the capability surface of the IRC side used by the bridge.
type ChatSession interface {
	Events() <-chan ChatEvent
	Send(destination, text string) error
}

// BusSession is the capability surface of the MQTT side used by the bridge.
type BusSession interface {
	Events() <-chan BusEvent
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
}
