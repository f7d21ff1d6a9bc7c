package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/agentwire/pkg/service"
)

var (
	webhookCmd = &cobra.Command{
		Use:   "webhook",
		Short: "Run the webhook receiver",
		Long:  longWebhook,
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.NewWebhookServer(
				viper.GetString("webhook.addr"),
			).Start()
		},
	}
)

func init() {
	rootCmd.AddCommand(webhookCmd)
}

var longWebhook = `
Serve the webhook receiver.  It accepts lifecycle notifications on
POST /webhook and keeps an in-memory delivery log browsable on /logs.

Examples:
  # Serve the webhook receiver on the configured address
  agentwire webhook
`
