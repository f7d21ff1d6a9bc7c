package a2a

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

/*
Client speaks the task lifecycle HTTP surface of an agent.
*/
type Client struct {
	baseURL string
	conn    *resty.Client
}

/*
NewClient creates a new client for the agent at baseURL.
*/
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		conn: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json"),
	}
}

/*
Card fetches the agent's discovery document.
*/
func (client *Client) Card(ctx context.Context) (*AgentCard, error) {
	var card AgentCard

	if err := client.get(ctx, "/.well-known/agent.json", &card); err != nil {
		return nil, err
	}

	return &card, nil
}

/*
CreateTask creates a task, optionally seeding the first message.
*/
func (client *Client) CreateTask(ctx context.Context, initial *Message) (*Task, error) {
	body := map[string]any{}
	if initial != nil {
		body["message"] = initial
	}

	var task Task

	resp, err := client.conn.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&task).
		Post("/tasks")

	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("create task: %s", resp.String())
	}

	return &task, nil
}

/*
GetTask retrieves the current task snapshot.
*/
func (client *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task

	if err := client.get(ctx, "/tasks/"+id, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

/*
SendResult is the response to SendMessage: the stored message, the agent's
reply when the append triggered processing, and the task status afterwards.
*/
type SendResult struct {
	Message *Message  `json:"message"`
	Reply   *Message  `json:"reply,omitempty"`
	Status  TaskState `json:"status"`
}

/*
SendMessage appends a message to the task's log.
*/
func (client *Client) SendMessage(ctx context.Context, taskID string, msg *Message) (*SendResult, error) {
	var result SendResult

	resp, err := client.conn.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&result).
		Post("/tasks/" + taskID + "/messages")

	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("send message: %s", resp.String())
	}

	return &result, nil
}

/*
CancelTask cancels a submitted or working task.
*/
func (client *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	var task Task

	resp, err := client.conn.R().
		SetContext(ctx).
		SetResult(&task).
		Delete("/tasks/" + id)

	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("cancel task: %s", resp.String())
	}

	return &task, nil
}

/*
StreamEvent is one typed event received over an SSE subscription.
*/
type StreamEvent struct {
	Event string
	Data  json.RawMessage
}

/*
Stream opens the SSE subscription for a task and invokes handler for every
event until a terminal event arrives, the server closes the stream or ctx
is canceled.
*/
func (client *Client) Stream(ctx context.Context, taskID string, handler func(StreamEvent)) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		client.baseURL+"/tasks/"+taskID+"/messages/stream", nil,
	)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}

	var current StreamEvent
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			if current.Event != "" || len(current.Data) > 0 {
				handler(current)

				if current.Event == "completed" || current.Event == "error" {
					return nil
				}

				current = StreamEvent{}
			}
		case strings.HasPrefix(line, ":"):
			// comment heartbeat
		case strings.HasPrefix(line, "event:"):
			current.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (client *Client) get(ctx context.Context, path string, out any) error {
	resp, err := client.conn.R().
		SetContext(ctx).
		SetResult(out).
		Get(path)

	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("GET %s: %s", path, resp.String())
	}

	return nil
}
