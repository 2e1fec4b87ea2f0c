package invoker

import "github.com/rs/zerolog"

// LogPublisher writes events to a zerolog logger. Failures are logged at warn,
// everything else at debug.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Logger.Debug()
	switch e.Name {
	case "spawn_error", "spawn_timeout":
		ev = p.Logger.Warn()
	}
	ev.Str("event", e.Name).Str("program", e.Program).Fields(e.Fields).Msg("invoker")
}
