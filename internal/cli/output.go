package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/picklr-io/shipyard/internal/state"
	"github.com/spf13/cobra"
)

var outputJSON bool

func newOutputCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "output [stage]",
		Short: "Show recorded deployment results",
		Long: `Reads the results recorded in the ledger by previous deployments.

If no stage is given, every recorded stage is displayed. If a stage is
given (for example api/function), only that stage is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runOutput,
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	return cmd
}

func runOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	env := newEnvironment(profile)

	dir, err := projectDir()
	if err != nil {
		return err
	}
	p, err := loadProject(ctx, dir, env.resolver, nil)
	if err != nil {
		return err
	}
	backend, err := state.NewBackend(ctx, dir, p.Ledger, env.awsConfig)
	if err != nil {
		return err
	}
	ledger, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	if len(args) > 0 {
		res, ok := ledger.PriorResult(args[0])
		if !ok {
			return fmt.Errorf("no result recorded for stage %q", args[0])
		}
		if outputJSON {
			return writeJSON(cmd, res)
		}
		renderResult(out, res)
		return nil
	}

	if len(ledger.Results) == 0 {
		fmt.Fprintln(out, "No deployments recorded.")
		return nil
	}
	if outputJSON {
		return writeJSON(cmd, ledger.Results)
	}

	names := make([]string, 0, len(ledger.Results))
	for name := range ledger.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		renderResult(out, ledger.Results[name])
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
