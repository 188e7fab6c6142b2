package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/room"
	"github.com/mcdev12/quizwar/internal/store"
)

// StoreFeed adapts store watches into connection manager broadcasts:
// every observed document version becomes a RoomUpdated event, a
// deletion becomes RoomDeleted.
func StoreFeed(st store.Store) FeedStarter {
	return func(cm *ConnectionManager) feedFunc {
		return func(ctx context.Context, code string) (func(), error) {
			watcher, err := st.Watch(ctx, room.Key(code))
			if err != nil {
				return nil, err
			}

			go func() {
				for entry := range watcher.Updates() {
					event := &RoomEvent{
						ID:        uuid.New().String(),
						Room:      code,
						Type:      EventTypeRoomUpdated,
						Timestamp: time.Now(),
					}
					if entry.Deleted {
						event.Type = EventTypeRoomDeleted
					} else {
						event.Data = entry.Value
					}
					cm.BroadcastToRoom(code, event)

					log.Debug().
						Str("room", code).
						Str("event_type", string(event.Type)).
						Uint64("revision", entry.Revision).
						Msg("room document update")
				}
			}()

			return watcher.Stop, nil
		}
	}
}
