package service

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/agentwire/pkg/a2a"
	"github.com/theapemachine/agentwire/pkg/errors"
	"github.com/theapemachine/agentwire/pkg/service/sse"
)

/*
Server exposes the task lifecycle engine over HTTP.  It is safe for
concurrent use by default because the store serializes per-task mutation
and the stream broker is per-subscription.
*/
type Server struct {
	app     *fiber.App
	card    a2a.AgentCard
	manager *TaskManager
	broker  *sse.Broker
	addr    string
}

/*
NewServer constructs a server with the supplied agent card and task
manager.
*/
func NewServer(card a2a.AgentCard, manager *TaskManager, addr string) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:           card.Name,
			ServerHeader:      "Agentwire-Server",
			StreamRequestBody: true,
		}),
		card:    card,
		manager: manager,
		broker:  sse.NewBroker(),
		addr:    addr,
	}

	srv.routes()

	return srv
}

func (srv *Server) routes() {
	srv.app.Use(logger.New(logger.Config{
		// Skip logging for the stream endpoint to reduce noise
		Next: func(c fiber.Ctx) bool {
			return c.Route().Path == "/tasks/:id/messages/stream"
		},
	}), healthcheck.New())

	srv.app.Get("/", srv.handleRoot)
	srv.app.Get("/.well-known/agent.json", srv.handleAgentCard)
	srv.app.Post("/tasks", srv.handleCreateTask)
	srv.app.Get("/tasks", srv.handleListTasks)
	srv.app.Get("/tasks/:id", srv.handleGetTask)
	srv.app.Delete("/tasks/:id", srv.handleCancelTask)
	srv.app.Post("/tasks/:id/messages", srv.handleSendMessage)
	srv.app.Get("/tasks/:id/messages", srv.handleGetMessages)
	srv.app.Get("/tasks/:id/messages/stream", srv.handleStream)
	srv.app.Get("/tasks/:id/messages/:messageId", srv.handleGetMessage)
}

func (srv *Server) Start() error {
	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *Server) Shutdown() error {
	return srv.app.Shutdown()
}

// App exposes the fiber application for in-process testing.
func (srv *Server) App() *fiber.App {
	return srv.app
}

func (srv *Server) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *Server) handleAgentCard(ctx fiber.Ctx) error {
	return ctx.JSON(srv.card)
}

// createTaskRequest optionally seeds the first message.
type createTaskRequest struct {
	Message *a2a.Message `json:"message,omitempty"`
}

func (srv *Server) handleCreateTask(ctx fiber.Ctx) error {
	var req createTaskRequest

	if len(ctx.Body()) > 0 {
		if err := ctx.Bind().Body(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body: " + err.Error(),
			})
		}
	}

	task, taskErr := srv.manager.CreateTask(ctx.Context(), req.Message)
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.Status(fiber.StatusCreated).JSON(task)
}

func (srv *Server) handleListTasks(ctx fiber.Ctx) error {
	tasks, taskErr := srv.manager.ListTasks(ctx.Context(), a2a.TaskState(ctx.Query("status")))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.JSON(tasks)
}

func (srv *Server) handleGetTask(ctx fiber.Ctx) error {
	task, taskErr := srv.manager.GetTask(ctx.Context(), ctx.Params("id"))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.JSON(task)
}

func (srv *Server) handleCancelTask(ctx fiber.Ctx) error {
	task, taskErr := srv.manager.CancelTask(ctx.Context(), ctx.Params("id"))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.JSON(task)
}

func (srv *Server) handleSendMessage(ctx fiber.Ctx) error {
	var msg a2a.Message

	if err := ctx.Bind().Body(&msg); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	stored, reply, taskErr := srv.manager.SendMessage(ctx.Context(), ctx.Params("id"), msg)
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	task, taskErr := srv.manager.GetTask(ctx.Context(), ctx.Params("id"))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	response := fiber.Map{
		"message": stored,
		"status":  task.Status,
	}

	if reply != nil {
		response["reply"] = reply
	}

	return ctx.Status(fiber.StatusCreated).JSON(response)
}

func (srv *Server) handleGetMessages(ctx fiber.Ctx) error {
	messages, taskErr := srv.manager.GetMessages(ctx.Context(), ctx.Params("id"))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.JSON(messages)
}

func (srv *Server) handleGetMessage(ctx fiber.Ctx) error {
	msg, taskErr := srv.manager.GetMessage(ctx.Context(), ctx.Params("id"), ctx.Params("messageId"))
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	return ctx.JSON(msg)
}

func (srv *Server) handleStream(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	produce, taskErr := srv.manager.StreamTask(context.Background(), id)
	if taskErr != nil {
		return srv.errorJSON(ctx, taskErr)
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		srv.broker.Stream(w, r, id, produce)
	}

	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (srv *Server) errorJSON(ctx fiber.Ctx, taskErr *errors.TaskError) error {
	return ctx.Status(taskErr.HTTPStatus()).JSON(taskErr)
}
