/*
Package cmd implements the command-line interface for agentwire.
It provides commands for serving an agent, receiving webhook
notifications and talking to a running agent.
*/
package cmd

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"embed"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

/*
rootCmd represents the base command when called without any subcommands
*/
var (
	projectName = "agentwire"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   "agentwire",
		Short: "A task lifecycle engine for agent-to-agent exchange",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the agentwire CLI. It initializes the
root command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)
}

/*
initConfig writes the default config file to the user's home directory if
it doesn't exist, and then reads the config file from there.
*/
func initConfig() {
	var err error

	if err = writeConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	// Add user config directory (~/.agentwire)
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err = viper.ReadInConfig(); err != nil {
		log.Fatal(err)
		return
	}
}

/*
writeConfig writes the default config file to the user's home directory.
*/
func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	configDir := home + "/." + projectName
	if !checkFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	for _, file := range []string{cfgFile} {
		fullPath := configDir + "/" + file

		if checkFileExists(fullPath) {
			continue
		}

		if fh, err = embedded.Open("cfg/" + file); err != nil {
			return fmt.Errorf("failed to open embedded config file: %w", err)
		}

		if _, err = io.Copy(&buf, fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to read embedded config file: %w", err)
		}

		if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write config file: %w", err)
		}

		log.Println("wrote config file to", fullPath)
		fh.Close()
		buf.Reset()
	}

	return nil
}

func checkFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var longRoot = `
agentwire lets autonomous agents exchange tasks and messages over HTTP,
with synchronous polling, outbound webhook notifications and SSE
streaming of incremental output.

Examples:
  # Serve an agent on the configured address
  agentwire serve

  # Run a webhook receiver to observe lifecycle notifications
  agentwire webhook

  # Send a message to a running agent and stream the reply
  agentwire send --stream "tell me a story"
`
