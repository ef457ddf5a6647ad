package websocket

import (
	"context"
	"encoding/json"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type BroadcastMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// Relay distributes events to hubs running in other processes.
type Relay interface {
	Publish(evt job.Event)
	Listen(ctx context.Context, fn func(job.Event))
}

// Hub keeps the dashboard connections of this process and streams execution
// events to them. Connection state is owned by the Run goroutine.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan BroadcastMessage
	events     chan job.Event
	relay      Relay
}

func NewHub(relay Relay) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan BroadcastMessage, 64),
		events:     make(chan job.Event, 256),
		relay:      relay,
	}
}

// Publish implements job.EventSink. Events are dropped when the hub is saturated.
func (h *Hub) Publish(evt job.Event) {
	select {
	case h.events <- evt:
	default:
		logrus.Warnf("[WS] Hub saturated, dropping %s for job %s", evt.Type, evt.JobID)
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.relay != nil {
		h.relay.Listen(ctx, func(evt job.Event) {
			select {
			case h.broadcast <- eventMessage(evt):
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				h.closeConnection(conn)
			}
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			logrus.Debug("[WS] Connection registered")

		case conn := <-h.unregister:
			delete(h.clients, conn)
			logrus.Debug("[WS] Connection unregistered")

		case message := <-h.broadcast:
			h.broadcastToLocal(message)

		case evt := <-h.events:
			h.broadcastToLocal(eventMessage(evt))
			if h.relay != nil {
				h.relay.Publish(evt)
			}
		}
	}
}

func eventMessage(evt job.Event) BroadcastMessage {
	return BroadcastMessage{Code: string(evt.Type), Message: evt.JobName, Result: evt}
}

func (h *Hub) broadcastToLocal(message BroadcastMessage) {
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			h.closeConnection(conn)
		}
	}
}

func (h *Hub) closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(h.clients, conn)
}

// RegisterRoutes mounts /ws. Clients may send {"code":"FETCH_STATUS"} to get
// the scheduler status pushed to every connected dashboard.
func (h *Hub) RegisterRoutes(app fiber.Router, service domainScheduled.IScheduledMessageUsecase) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			h.unregister <- conn
			_ = conn.Close()
		}()

		h.register <- conn

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] Read error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			var request BroadcastMessage
			if err := json.Unmarshal(message, &request); err != nil {
				logrus.Debugf("[WS] Unmarshal error: %v", err)
				continue
			}

			if request.Code == "FETCH_STATUS" {
				status, err := service.SchedulerStatus(context.Background())
				if err != nil {
					continue
				}
				h.broadcast <- BroadcastMessage{
					Code:    "SCHEDULER_STATUS",
					Message: "Scheduler status",
					Result:  status,
				}
			}
		}
	}))
}
