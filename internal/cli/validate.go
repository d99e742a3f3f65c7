package cli

import (
	"fmt"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/reconcile"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project configuration",
		Long: `Loads the project configuration, applies defaults and checks every
service and its stage graph without contacting the cloud provider for
anything but referenced parameter values.`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := projectDir()
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Validating configuration... ")
	p, err := loadProject(cmd.Context(), dir, newEnvironment(profile).resolver, nil)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}
	stages, err := reconcile.ServiceStages(p)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}
	if _, err := engine.BuildDAG(stages); err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("invalid stage graph: %w", err)
	}
	fmt.Fprintln(out, "OK")

	for _, s := range p.Services {
		fmt.Fprintf(out, "  %s (%s) %s\n", s.Name, s.Kind, s.DomainName())
	}
	fmt.Fprintf(out, "\nConfiguration is valid: %d services, %d stages.\n", len(p.Services), len(stages))
	return nil
}
