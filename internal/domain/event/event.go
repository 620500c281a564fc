package event

type EventKind int16

const (
	Ping                EventKind = iota + 1 // [SYSTEM] liveness probe for zombie sessions
	MessageCreated                           // [BUSINESS] 1:1 chat payload
	GroupMessageCreated                      // [BUSINESS]
	MessageAck                               // delivered/read receipt towards the sender
	UserStatus                               // presence delta for a friend
	GroupUserStatus                          // presence delta scoped to one shared group
	Notification                             // relationship/file/system notification
	SystemBroadcast                          // server-wide announcement
)

func (k EventKind) String() string {
	switch k {
	case Ping:
		return "ping"
	case MessageCreated:
		return "message_created"
	case GroupMessageCreated:
		return "group_message_created"
	case MessageAck:
		return "message_ack"
	case UserStatus:
		return "user_status"
	case GroupUserStatus:
		return "group_user_status"
	case Notification:
		return "notification"
	case SystemBroadcast:
		return "system_broadcast"
	default:
		return "unknown"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUserID() int64
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines an event bound for the message bus. The dispatcher
// marshals GetPayload and publishes it under GetRoutingKey; GetKey rides
// along as metadata for partition affinity and consumer-side routing.
type Exportable interface {
	GetRoutingKey() string
	GetKey() string
	GetPayload() any
}
