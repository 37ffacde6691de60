package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/event"
	"github.com/reelhq/reel/pkg/logger"
)

var activityLogger = logger.Get("Activity")

// activityService subscribes to the event bus and surfaces pipeline
// activity in the server log. The UI discovers the same state changes by
// polling; this service exists for the operator watching the process.
type activityService struct {
	eventBus event.EventHandler
}

func newActivityService(eventBus event.EventHandler) *activityService {
	return &activityService{eventBus: eventBus}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.DOWNLOAD_UPDATE, event.DOWNLOAD_COMPLETE,
		event.UPLOAD_UPDATE, event.UPLOAD_COMPLETE, event.NEW_ARTIFACT)

	activityLogger.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			service.handleEvent(ev)
		case <-ctx.Done():
			activityLogger.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) {
	resourceID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		activityLogger.Warnf("Discarding %s event with non-UUID payload\n", ev.Event)
		return
	}

	activityLogger.Debugf("%s: %s\n", ev.Event, resourceID)
}
