package provider

import (
	"context"
	"strings"
	"time"

	"github.com/theapemachine/agentwire/pkg/a2a"
)

/*
Echo is a trivial backend that replies by echoing the last user message.
It keeps the out-of-the-box experience pleasant and gives tests a
deterministic generator.
*/
type Echo struct {
	// ChunkDelay paces streamed fragments so SSE consumers see
	// incremental output.  Zero means no pacing.
	ChunkDelay time.Duration
}

func NewEcho() *Echo {
	return &Echo{}
}

func (echo *Echo) Complete(ctx context.Context, messages []a2a.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return echo.reply(messages), nil
}

func (echo *Echo) Stream(ctx context.Context, messages []a2a.Message, onDelta func(string)) (string, error) {
	reply := echo.reply(messages)
	words := strings.SplitAfter(reply, " ")

	var sb strings.Builder

	for _, word := range words {
		if word == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		default:
		}

		if echo.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return sb.String(), ctx.Err()
			case <-time.After(echo.ChunkDelay):
			}
		}

		onDelta(word)
		sb.WriteString(word)
	}

	return sb.String(), nil
}

func (echo *Echo) reply(messages []a2a.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == a2a.RoleUser {
			return "echo: " + messages[i].String()
		}
	}

	return "echo:"
}
