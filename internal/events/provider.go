package events

import (
	"fmt"
	"strings"

	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events/bus"
)

// Provide returns the board event bus for cfg and a function that closes
// it. A configured nats.url selects NATS, so every client and the server
// share one subject space; without it events stay in the process.
func Provide(cfg *config.Config, log *logger.Logger) (bus.EventBus, func() error, error) {
	var eventBus bus.EventBus
	if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect board events to %s: %w", url, err)
		}
		eventBus = natsBus
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	return eventBus, func() error {
		eventBus.Close()
		return nil
	}, nil
}
