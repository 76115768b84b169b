package main

import (
	"log/slog"

	"vestchain/core/events"
	"vestchain/core/types"
)

type attributed interface {
	Event() *types.Event
}

// logEmitter forwards engine events to structured logs so operators can tail
// the event stream without a dedicated indexer.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if l.log == nil || evt == nil {
		return
	}
	fields := []any{"event", evt.EventType()}
	if payload, ok := evt.(attributed); ok {
		if e := payload.Event(); e != nil {
			for k, v := range e.Attributes {
				fields = append(fields, k, v)
			}
		}
	}
	l.log.Info("vesting event", fields...)
}
