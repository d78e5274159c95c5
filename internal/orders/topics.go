package orders

const (
	TopicOrderCreated = "order.created"
	TopicOrderDeleted = "order.deleted"
)

// TopicFor maps an event type to its topic, "" when unknown.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated:
		return TopicOrderCreated
	case EventOrderDeleted:
		return TopicOrderDeleted
	}
	return ""
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
