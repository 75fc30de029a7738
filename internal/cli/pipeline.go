package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineCreateCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var pipelineHeaders = []string{"ID", "NAME", "IMAGE", "REPOSITORY", "BRANCH", "SCRIPT"}

func pipelineRow(p PipelineResponse) []string {
	return []string{p.ID, p.Name, p.DockerImage, p.RepositoryURL, p.RepositoryBranch, p.RepositoryScript}
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines, err := clientFn().ListPipelines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = pipelineRow(p)
			}
			outputFn().Print(pipelineHeaders, rows, pipelines)
			return nil
		},
	}
}

func newPipelineCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreatePipelineRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := clientFn().CreatePipeline(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline created: %s", p.ID))
			out.Print(pipelineHeaders, [][]string{pipelineRow(*p)}, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Pipeline description")
	cmd.Flags().StringVar(&req.DockerImage, "image", "", "Docker image (required)")
	cmd.Flags().StringVar(&req.RepositoryURL, "repo", "", "Git repository URL (required)")
	cmd.Flags().StringVar(&req.RepositoryBranch, "branch", "main", "Git branch")
	cmd.Flags().StringVar(&req.RepositoryScript, "script", "openfido.sh", "Entry script inside the repository")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("repo")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := clientFn().GetPipeline(args[0])
			if err != nil {
				return err
			}
			if out.jsonMode {
				out.JSON(p)
				return nil
			}
			out.Details([]Field{
				{"ID", p.ID},
				{"Name", p.Name},
				{"Description", p.Description},
				{"Image", p.DockerImage},
				{"Repository", p.RepositoryURL},
				{"Branch", p.RepositoryBranch},
				{"Script", p.RepositoryScript},
				{"Created", p.CreatedAt},
			})
			return nil
		},
	}
}

func newPipelineDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeletePipeline(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Pipeline deleted: %s", args[0]))
			return nil
		},
	}
}
