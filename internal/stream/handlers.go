package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the live stats socket. A viewer subscribes to one
// tracking session and receives every payload the hub broadcasts for it
// (stats, splits, transitions) until either side hangs up.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:sessionID", websocket.New(func(conn *websocket.Conn) {
		client := hub.Register(conn.Params("sessionID"))

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for payload := range client.Send {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}()

		// The read loop only notices the viewer disconnecting; inbound
		// frames carry nothing and are discarded.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		// Unregister closes Send, which releases the writer even when no
		// further broadcast arrives for this session.
		hub.Unregister(client)
		<-writerDone
	}))
}
