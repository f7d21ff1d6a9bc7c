package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/agentwire/pkg/a2a"
	"github.com/theapemachine/agentwire/pkg/notify"
	"github.com/theapemachine/agentwire/pkg/provider"
	"github.com/theapemachine/agentwire/pkg/service"
	"github.com/theapemachine/agentwire/pkg/stores"
)

var (
	addrFlag    string
	webhookFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()

			addr := addrFlag
			if addr == "" {
				addr = v.GetString("server.addr")
			}

			webhookURL := webhookFlag
			if webhookURL == "" {
				webhookURL = v.GetString("notifications.webhook_url")
			}

			dispatcher := notify.NewDispatcher(notify.Config{
				URL:        webhookURL,
				Timeout:    v.GetDuration("notifications.timeout"),
				QueueDepth: v.GetInt("notifications.queue_depth"),
				MaxRetries: v.GetInt("notifications.max_retries"),
			})
			defer dispatcher.Close()

			backend, err := chooseBackend(v)
			if err != nil {
				return err
			}

			manager := service.NewTaskManager(
				stores.NewInMemoryTaskStore(), backend, dispatcher,
			)

			card := a2a.CardFromConfig(v)
			log.Info("starting agent server", "agent", card.Name, "addr", addr)

			return service.NewServer(card, manager, addr).Start()
		},
	}
)

// chooseBackend returns the configured Ollama provider, falling back to
// the echo backend when none is configured.
func chooseBackend(v *viper.Viper) (provider.Interface, error) {
	if v.GetString("provider.backend") == "ollama" {
		return provider.NewOllama(
			v.GetString("provider.ollama.host"),
			v.GetString("provider.ollama.model"),
		)
	}

	return provider.NewEcho(), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Address to serve on")
	serveCmd.Flags().StringVarP(&webhookFlag, "webhook", "w", "", "Webhook URL for lifecycle notifications")
}

var longServe = `
Serve the agent over HTTP.

Examples:
  # Serve on the configured address
  agentwire serve

  # Serve on port 8080 with webhook notifications
  agentwire serve --addr :8080 --webhook http://localhost:3211/webhook
`
