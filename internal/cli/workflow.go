package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowNodeCmd(clientFn, outputFn),
		newWorkflowEdgeCmd(clientFn, outputFn),
		newWorkflowRunCmd(clientFn, outputFn),
		newWorkflowRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := clientFn().ListWorkflows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = []string{w.ID, w.Name, w.CreatedAt}
			}
			outputFn().Print([]string{"ID", "NAME", "CREATED"}, rows, workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := clientFn().CreateWorkflow(name, description)
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Workflow created: %s", w.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Workflow description")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow nodes and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := clientFn().GetWorkflow(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(g.Nodes)+len(g.Edges))
			for _, n := range g.Nodes {
				rows = append(rows, []string{"node", n.ID, "pipeline " + n.PipelineID})
			}
			for _, e := range g.Edges {
				rows = append(rows, []string{"edge", e.ID, e.FromNodeID + " -> " + e.ToNodeID})
			}
			outputFn().Print([]string{"KIND", "ID", "DETAIL"}, rows, g)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteWorkflow(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowNodeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage workflow nodes",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add WORKFLOW_ID PIPELINE_ID",
			Short: "Place a pipeline into a workflow",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := clientFn().AddNode(args[0], args[1])
				if err != nil {
					return err
				}
				outputFn().Success(fmt.Sprintf("Node added: %s", n.ID))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm NODE_ID",
			Short: "Remove a node and its edges",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := clientFn().RemoveNode(args[0]); err != nil {
					return err
				}
				outputFn().Success(fmt.Sprintf("Node removed: %s", args[0]))
				return nil
			},
		},
	)

	return cmd
}

func newWorkflowEdgeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Manage workflow dependencies",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add WORKFLOW_ID FROM_NODE TO_NODE",
			Short: "Feed artifacts of FROM_NODE into TO_NODE",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := clientFn().AddEdge(args[0], args[1], args[2])
				if err != nil {
					return err
				}
				outputFn().Success(fmt.Sprintf("Edge added: %s", e.ID))
				return nil
			},
		},
		&cobra.Command{
			Use:   "check WORKFLOW_ID FROM_NODE TO_NODE",
			Short: "Check whether an edge would create a cycle",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				cyclic, err := clientFn().CheckEdge(args[0], args[1], args[2])
				if err != nil {
					return err
				}
				out := outputFn()
				if out.jsonMode {
					out.JSON(map[string]bool{"would_create_cycle": cyclic})
					return nil
				}
				if cyclic {
					out.Text("edge would create a cycle\n")
				} else {
					out.Text("edge is acyclic\n")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm EDGE_ID",
			Short: "Remove a dependency",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := clientFn().RemoveEdge(args[0]); err != nil {
					return err
				}
				outputFn().Success(fmt.Sprintf("Edge removed: %s", args[0]))
				return nil
			},
		},
	)

	return cmd
}

func printWorkflowRun(out *Output, wr *WorkflowRunResponse) {
	rows := make([][]string, len(wr.Runs))
	for i, l := range wr.Runs {
		rows[i] = []string{l.WorkflowPipelineID, l.PipelineRunID}
	}
	out.Print([]string{"NODE_ID", "RUN_ID"}, rows, wr)
}

func newWorkflowRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var callbackURL string

	cmd := &cobra.Command{
		Use:   "run WORKFLOW_ID",
		Short: "Start a workflow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			wr, err := clientFn().RunWorkflow(args[0], CreateRunRequest{Inputs: parsed, CallbackURL: callbackURL})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow run started: %s", wr.ID))
			printWorkflowRun(out, wr)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input file for root pipelines as NAME=URL (repeatable)")
	cmd.Flags().StringVar(&callbackURL, "callback", "", "URL notified on every state change")

	return cmd
}

func newWorkflowRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "run-show WORKFLOW_RUN_ID",
		Short: "Show the pipeline runs of a workflow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wr, err := clientFn().GetWorkflowRun(args[0])
			if err != nil {
				return err
			}
			printWorkflowRun(outputFn(), wr)
			return nil
		},
	}
}
