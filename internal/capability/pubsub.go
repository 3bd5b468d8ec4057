package capability

// Bus is the guest-facing pub_sub.subscribe / pub_sub.publish capability
// (spec.md §6). Publish is non-blocking: an implementation must never let a
// slow or absent subscriber stall the publisher, mirroring the discipline
// internal/events.Emitter applies to its own WebSocket fan-out. Never
// implemented inside this repository — see internal/capability package doc.
type Bus interface {
	// Subscribe returns a channel of payloads published to topic and an
	// unsubscribe function to stop delivery and release the channel.
	Subscribe(topic string) (payloads <-chan []byte, unsubscribe func())
	// Publish fans payload out to topic's subscribers without blocking the
	// caller on any of them.
	Publish(topic string, payload []byte)
}
