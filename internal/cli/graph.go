package cli

import (
	"fmt"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/reconcile"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [service...]",
		Short: "Output the stage graph in DOT format",
		Long: `Generates the deployment stage graph in Graphviz DOT format. Pipe the
output to 'dot' to generate an image:

  shipyard graph | dot -Tpng > graph.png`,
		RunE: runGraph,
	}
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	p, err := loadProject(cmd.Context(), dir, newEnvironment(profile).resolver, nil)
	if err != nil {
		return err
	}
	stages, err := reconcile.ServiceStages(p, args...)
	if err != nil {
		return err
	}
	dag, err := engine.BuildDAG(stages)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "digraph shipyard {")
	fmt.Fprintln(out, "  rankdir = \"BT\";")
	fmt.Fprintln(out, "  node [shape = rect];")
	fmt.Fprintln(out)
	for _, name := range dag.Order() {
		fmt.Fprintf(out, "  %q;\n", name)
	}
	fmt.Fprintln(out)
	for _, name := range dag.Order() {
		for _, dep := range dag.Dependencies(name) {
			fmt.Fprintf(out, "  %q -> %q;\n", name, dep)
		}
	}
	fmt.Fprintln(out, "}")
	return nil
}
