package event

// Topics are the well-known routing keys on the im.events exchange. Queue
// bindings and publishes both use the topic verbatim as the routing key.
const (
	TopicMessagesPersonal = "messages-personal"
	TopicMessagesGroup    = "messages-group"
	TopicOfflineMessages  = "offline-messages"
	TopicRelationship     = "relationship-events"
	TopicSystem           = "system-events"
	TopicFiles            = "file-events"
)

var _ Exportable = (*BusEvent)(nil)

// BusEvent binds a wire payload to its topic and affinity key. Payloads are
// the dto structs shared with the consumer side, so what one node publishes
// another decodes without a translation layer.
type BusEvent struct {
	topic   string
	key     string
	payload any
}

func NewBusEvent(topic, key string, payload any) *BusEvent {
	return &BusEvent{topic: topic, key: key, payload: payload}
}

func (e *BusEvent) GetRoutingKey() string { return e.topic }
func (e *BusEvent) GetKey() string        { return e.key }
func (e *BusEvent) GetPayload() any       { return e.payload }
