package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/events/bus"
)

// changed publishes eventType for a board and notifies live subscribers.
func (s *Service) changed(ctx context.Context, boardID int64, eventType string, data map[string]interface{}) {
	if s.eventBus != nil {
		event := bus.NewEvent(eventType, "board-service", boardID, data)
		if err := s.eventBus.Publish(ctx, events.BuildBoardSubject(boardID, eventType), event); err != nil {
			s.logger.Error("failed to publish board event",
				zap.String("event_type", eventType),
				zap.Int64("board_id", boardID),
				zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(boardID, eventType)
	}
}
