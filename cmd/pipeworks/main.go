// Pipeworks CLI — инструмент командной строки для управления
// pipelines, workflows и runs через HTTP API.
//
// Использование:
//
//	pipeworks [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	pipeline  Управление pipelines
//	run       Управление runs
//	workflow  Управление workflows и их запусками
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Pipeworks/internal/cli"
	"github.com/shaiso/Pipeworks/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Адрес API по умолчанию берётся из pipeworks.yaml / PIPEWORKS_API_URL
	defaultURL := "http://localhost:8080"
	if cfg, err := config.Load(""); err == nil {
		defaultURL = cfg.API.URL
	}

	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "pipeworks",
		Short:         "Pipeworks CLI — containerized pipeline workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPipelineCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewWorkflowCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
