package handler

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/voxhub/notify-engine/internal/observability"
	"github.com/voxhub/notify-engine/internal/realtime"
)

// RegisterRealtimeRoutes exposes the websocket endpoint that feeds
// IN_APP deliveries to connected clients. A connection only receives
// messages; inbound frames just refresh liveness.
func RegisterRealtimeRoutes(router fiber.Router, registry *realtime.Registry, metrics *observability.Metrics) {
	router.Use("/v1/realtime/:recipientId", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/v1/realtime/:recipientId", websocket.New(func(conn *websocket.Conn) {
		recipientID := strings.TrimSpace(conn.Params("recipientId"))
		if recipientID == "" {
			_ = conn.Close()
			return
		}

		handle := registry.Register(recipientID, conn)
		if metrics != nil {
			metrics.IncRealtimeConnections()
		}
		defer func() {
			registry.Unregister(handle)
			if metrics != nil {
				metrics.DecRealtimeConnections()
			}
			_ = conn.Close()
		}()

		conn.SetPongHandler(func(string) error {
			handle.Touch(time.Now())
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			handle.Touch(time.Now())
		}
	}))
}
