package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/theapemachine/agentwire/pkg/a2a"
)

/*
ollamaRoleMap translates message roles onto the roles the Ollama chat API
understands.
*/
var ollamaRoleMap = map[string]string{
	a2a.RoleUser:  "user",
	a2a.RoleAgent: "assistant",
}

/*
Ollama drives a local Ollama instance as the generation backend.
*/
type Ollama struct {
	client *api.Client
	model  string
}

/*
NewOllama connects to the Ollama host.  An empty host falls back to the
OLLAMA_HOST environment configuration.
*/
func NewOllama(host string, model string) (*Ollama, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
		return &Ollama{client: client, model: model}, nil
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	return &Ollama{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
	}, nil
}

func (prvdr *Ollama) Complete(ctx context.Context, messages []a2a.Message) (string, error) {
	return prvdr.chat(ctx, messages, false, nil)
}

func (prvdr *Ollama) Stream(ctx context.Context, messages []a2a.Message, onDelta func(string)) (string, error) {
	return prvdr.chat(ctx, messages, true, onDelta)
}

func (prvdr *Ollama) chat(
	ctx context.Context, messages []a2a.Message, stream bool, onDelta func(string),
) (string, error) {
	req := &api.ChatRequest{
		Model:    prvdr.model,
		Messages: prvdr.convertMessages(messages),
		Stream:   &stream,
	}

	var sb strings.Builder

	respFunc := func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			sb.WriteString(resp.Message.Content)

			if onDelta != nil {
				onDelta(resp.Message.Content)
			}
		}
		return nil
	}

	if err := prvdr.client.Chat(ctx, req, respFunc); err != nil {
		return sb.String(), err
	}

	return sb.String(), nil
}

func (prvdr *Ollama) convertMessages(messages []a2a.Message) []api.Message {
	converted := make([]api.Message, 0, len(messages))

	for _, msg := range messages {
		role, ok := ollamaRoleMap[msg.Role]
		if !ok {
			role = "user"
		}

		converted = append(converted, api.Message{
			Role:    role,
			Content: msg.String(),
		})
	}

	return converted
}
