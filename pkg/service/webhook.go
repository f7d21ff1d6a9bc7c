package service

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/agentwire/pkg/notify"
)

// receivedEvent wraps a delivered webhook payload with its arrival time.
type receivedEvent struct {
	notify.Event
	ReceivedAt time.Time `json:"received_at"`
}

/*
WebhookServer is a standalone receiver for lifecycle notifications.  It
keeps an in-memory delivery log so the push path can be observed and
debugged without wiring a real consumer.
*/
type WebhookServer struct {
	app  *fiber.App
	addr string

	mu     sync.Mutex
	events []receivedEvent
}

/*
NewWebhookServer constructs the receiver.
*/
func NewWebhookServer(addr string) *WebhookServer {
	return &WebhookServer{
		app: fiber.New(fiber.Config{
			AppName:      "Agentwire-Webhook-Server",
			ServerHeader: "Agentwire-Webhook-Server",
		}),
		addr: addr,
	}
}

func (srv *WebhookServer) Start() error {
	srv.app.Use(logger.New(), healthcheck.New())

	srv.app.Get("/", srv.handleRoot)
	srv.app.Post("/webhook", srv.handleWebhook)
	srv.app.Get("/logs", srv.handleLogs)
	srv.app.Get("/logs/:taskId", srv.handleTaskLogs)
	srv.app.Post("/clear", srv.handleClear)

	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *WebhookServer) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *WebhookServer) handleWebhook(ctx fiber.Ctx) error {
	var evt notify.Event

	if err := ctx.Bind().Body(&evt); err != nil {
		return ctx.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	log.Info("webhook received",
		"task", evt.TaskID, "event", evt.Event, "status", evt.Status)

	srv.mu.Lock()
	srv.events = append(srv.events, receivedEvent{
		Event:      evt,
		ReceivedAt: time.Now().UTC(),
	})
	srv.mu.Unlock()

	return ctx.JSON(fiber.Map{"status": "received"})
}

func (srv *WebhookServer) handleLogs(ctx fiber.Ctx) error {
	srv.mu.Lock()
	events := make([]receivedEvent, len(srv.events))
	copy(events, srv.events)
	srv.mu.Unlock()

	return ctx.JSON(events)
}

func (srv *WebhookServer) handleTaskLogs(ctx fiber.Ctx) error {
	taskID := ctx.Params("taskId")

	srv.mu.Lock()
	events := make([]receivedEvent, 0)
	for _, evt := range srv.events {
		if evt.TaskID == taskID {
			events = append(events, evt)
		}
	}
	srv.mu.Unlock()

	return ctx.JSON(events)
}

func (srv *WebhookServer) handleClear(ctx fiber.Ctx) error {
	srv.mu.Lock()
	srv.events = nil
	srv.mu.Unlock()

	return ctx.JSON(fiber.Map{"status": "cleared"})
}
