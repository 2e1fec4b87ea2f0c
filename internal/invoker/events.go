package invoker

// Event represents an invocation lifecycle event.
// Minimal and stable: name + program label and optional fields via key/values.
type Event struct {
	Name    string
	Program string
	Fields  map[string]any
}

// EventPublisher receives events from the invoker. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
