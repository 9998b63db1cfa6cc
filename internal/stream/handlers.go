package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:batchID", websocket.New(func(c *websocket.Conn) {
		batchID := c.Params("batchID")
		client := hub.Register(batchID)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		// Unregister before waiting: closing Send is what lets the writer
		// goroutine finish when no further broadcasts arrive.
		hub.Unregister(client)
		<-done
	}))
}
