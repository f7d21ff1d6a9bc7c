package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/agentwire/pkg/a2a"
)

var (
	agentURLFlag string
	streamFlag   bool

	sendCmd = &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message to a running agent",
		Long:  longSend,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			client := a2a.NewClient(agentURLFlag)
			ctx := cmd.Context()

			if streamFlag {
				return sendStreaming(ctx, client, text)
			}

			return sendBlocking(ctx, client, text)
		},
	}
)

func sendBlocking(ctx context.Context, client *a2a.Client, text string) error {
	task, err := client.CreateTask(ctx, nil)
	if err != nil {
		return err
	}

	if _, err = client.SendMessage(ctx, task.ID, a2a.NewTextMessage(a2a.RoleUser, text)); err != nil {
		return err
	}

	// Fetch the final snapshot so the rendered task shows the reply.
	task, err = client.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}

	fmt.Println(task)
	return nil
}

func sendStreaming(ctx context.Context, client *a2a.Client, text string) error {
	task, err := client.CreateTask(ctx, a2a.NewTextMessage(a2a.RoleUser, text))
	if err != nil {
		return err
	}

	log.Info("streaming task", "task", task.ID)

	return client.Stream(ctx, task.ID, func(evt a2a.StreamEvent) {
		switch evt.Event {
		case "chunk":
			var chunk struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(evt.Data, &chunk); err == nil {
				fmt.Print(chunk.Content)
			}
		case "completed":
			fmt.Println()
			log.Info("task completed", "task", task.ID)
		case "error":
			fmt.Println()
			log.Error("task failed", "task", task.ID, "data", string(evt.Data))
		}
	})
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&agentURLFlag, "url", "u", "http://localhost:3210", "Base URL of the agent")
	sendCmd.Flags().BoolVarP(&streamFlag, "stream", "s", false, "Stream the reply over SSE")
}

var longSend = `
Send a message to a running agent.

Examples:
  # Create a task, send a message and print the completed task
  agentwire send "what is the capital of France?"

  # Stream the reply chunk by chunk
  agentwire send --stream "tell me a story"
`
