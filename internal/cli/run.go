package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunCreateCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunStateCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunConsoleCmd(clientFn, outputFn),
		newRunUploadCmd(clientFn, outputFn),
	)

	return cmd
}

// parseInputs разбирает значения --input вида NAME=URL.
func parseInputs(values []string) ([]RunInput, error) {
	inputs := make([]RunInput, 0, len(values))
	for _, kv := range values {
		name, url, ok := strings.Cut(kv, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid input format %q, expected NAME=URL", kv)
		}
		inputs = append(inputs, RunInput{Filename: name, URL: url})
	}
	return inputs, nil
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list PIPELINE_ID",
		Short: "List runs of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE_ID", "SEQUENCE", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.PipelineID, strconv.Itoa(r.Sequence), r.CreatedAt}
			}

			outputFn().Print(headers, rows, runs)
			return nil
		},
	}
}

func newRunCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var callbackURL string

	cmd := &cobra.Command{
		Use:     "create PIPELINE_ID",
		Aliases: []string{"start"},
		Short:   "Start a new pipeline run",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			run, err := clientFn().CreateRun(args[0], CreateRunRequest{Inputs: parsed, CallbackURL: callbackURL})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "PIPELINE_ID", "SEQUENCE", "CREATED"},
				[][]string{{run.ID, run.PipelineID, strconv.Itoa(run.Sequence), run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input file as NAME=URL (repeatable)")
	cmd.Flags().StringVar(&callbackURL, "callback", "", "URL notified on every state change")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run state history and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}
			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			out.Details([]Field{
				{"ID", run.ID},
				{"Pipeline", run.PipelineID},
				{"Sequence", strconv.Itoa(run.Sequence)},
				{"State", run.State},
				{"Callback", run.CallbackURL},
			})

			states := make([][]string, len(run.States))
			for i, s := range run.States {
				states[i] = []string{s.State, s.CreatedAt}
			}
			out.Text("\nStates:\n")
			out.Table([]string{"STATE", "AT"}, states)

			inputs := make([][]string, len(run.Inputs))
			for i, in := range run.Inputs {
				inputs[i] = []string{in.Filename, in.URL}
			}
			out.Text("\nInputs:\n")
			out.Table([]string{"FILENAME", "URL"}, inputs)

			artifacts := make([][]string, len(run.Artifacts))
			for i, a := range run.Artifacts {
				artifacts[i] = []string{a.Name, strconv.FormatInt(a.Size, 10), a.URL}
			}
			out.Text("\nArtifacts:\n")
			out.Table([]string{"NAME", "SIZE", "URL"}, artifacts)
			return nil
		},
	}
}

func newRunStateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "state ID STATE",
		Short: "Move a run to a new state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := clientFn().SetRunState(args[0], strings.ToUpper(args[1]))
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Run %s: %s -> %s", tr.RunID, tr.From, tr.To))
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := clientFn().CancelRun(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Run cancelled: %s", tr.RunID))
			return nil
		},
	}
}

func newRunConsoleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var stderr bool

	cmd := &cobra.Command{
		Use:   "console ID",
		Short: "Print run console output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}
			if out.jsonMode {
				out.JSON(run.Console)
				return nil
			}
			if stderr {
				out.Text(run.Console.Stderr)
				return nil
			}
			out.Text(run.Console.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stderr, "stderr", false, "Print stderr instead of stdout")

	return cmd
}

func newRunUploadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "upload ID FILE",
		Short: "Upload a file as a run artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := clientFn().UploadArtifact(args[0], args[1])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Artifact uploaded: %s (%d bytes)", a.Name, a.Size))
			return nil
		},
	}
}
