package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/eval"
	"github.com/picklr-io/shipyard/internal/logging"
	"github.com/picklr-io/shipyard/internal/reconcile"
	"github.com/picklr-io/shipyard/internal/state"
	awsprovider "github.com/picklr-io/shipyard/providers/aws"
	"github.com/spf13/cobra"
)

var (
	deploySkip        []string
	deployMetricsFile string
	deployProperties  map[string]string
	deployTimeout     time.Duration
)

// environment is what a command needs from the outside world.
type environment struct {
	factory   cloud.Factory
	resolver  eval.ValueResolver
	awsConfig state.ConfigLoader
	runOpts   []engine.RunOption
}

var newEnvironment = func(profile string) *environment {
	p := awsprovider.New(awsprovider.WithProfile(profile))
	return &environment{factory: p, resolver: p, awsConfig: p.Config}
}

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [service...]",
		Short: "Deploy services",
		Long: `Deploys the named services, or every service of the project.

Stages run one after another in dependency order. The first failure stops
the deployment; results of the stages that finished are still recorded in
the ledger so a later run can skip them with --skip.`,
		RunE: runDeploy,
	}
	cmd.Flags().StringSliceVar(&deploySkip, "skip", nil, "Stages to skip, by name (api/function), resource (function) or kind")
	cmd.Flags().StringVar(&deployMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	cmd.Flags().DurationVar(&deployTimeout, "timeout", 0, "Abort the deployment after this long (default 2h)")
	cmd.Flags().StringToStringVarP(&deployProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	return cmd
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	env := newEnvironment(profile)

	dir, err := projectDir()
	if err != nil {
		return err
	}
	p, err := loadProject(ctx, dir, env.resolver, deployProperties)
	if err != nil {
		return err
	}
	stages, err := reconcile.ServiceStages(p, args...)
	if err != nil {
		return err
	}

	backend, err := state.NewBackend(ctx, dir, p.Ledger, env.awsConfig)
	if err != nil {
		return err
	}
	if err := backend.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer func() {
		if uerr := backend.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			logging.Warn("failed to unlock ledger", "error", uerr)
		}
	}()

	ledger, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	metrics := engine.NewMetrics()
	fnOwn, _ := reconcile.ProjectOwnership(p)
	opts := append([]engine.RunOption{engine.WithOwnership(fnOwn), engine.WithMetrics(metrics)}, env.runOpts...)
	run := engine.NewRun(env.factory, opts...)

	fmt.Fprintf(out, "Deploying %s (%d stages)...\n", p.Name, len(stages))
	orch := &engine.Orchestrator{Prior: ledger, Callback: progressPrinter(out)}
	runCtx, cancel := engine.WithTimeout(ctx, deployTimeout)
	defer cancel()
	results, runErr := orch.Run(runCtx, run, stages, engine.NewSkipSet(deploySkip...))

	// Partial progress is recorded too, even after an interrupt.
	ledger.Record(results)
	if err := backend.Write(context.WithoutCancel(ctx), ledger); err != nil {
		if runErr != nil {
			logging.Error("failed to write ledger", "error", err)
		} else {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
	}

	if deployMetricsFile != "" {
		if err := metrics.WriteTextfile(deployMetricsFile); err != nil {
			logging.Warn("failed to write metrics", "path", deployMetricsFile, "error", err)
		}
	}

	if runErr != nil {
		var stageErr *engine.StageError
		if errors.As(runErr, &stageErr) {
			// The run stops at the first failure, so every later stage is pending.
			if dag, err := engine.BuildDAG(stages); err == nil {
				order := dag.Order()
				if i := slices.Index(order, stageErr.Stage); i >= 0 && i+1 < len(order) {
					fmt.Fprintf(out, "\nNot deployed: %s\n", strings.Join(order[i+1:], ", "))
				}
			}
		}
		return fmt.Errorf("deploy failed: %w", runErr)
	}

	fmt.Fprintln(out)
	renderSummary(out, results)
	fmt.Fprintln(out, "\nServices:")
	for _, s := range p.Services {
		if len(args) > 0 && !contains(args, s.Name) {
			continue
		}
		fmt.Fprintf(out, "  %s = %s\n", s.Name, reconcile.ServiceURL(s))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
