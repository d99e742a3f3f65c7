package cli

import (
	"context"

	"github.com/picklr-io/shipyard/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	logFormat  string
	projectArg string
	profile    string
	noColor    bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shipyard",
		Short: "Deploy serverless functions and static websites to AWS",
		Long: `Shipyard deploys the services declared in shipyard.pkl (or shipyard.yaml)
to AWS and keeps them converged with their declaration.

A function service becomes a Lambda function behind an HTTP API on its own
domain. A website service becomes an S3 bucket served by CloudFront. Every
deployment is idempotent: resources already in the declared state are left
untouched, and resources owned by another tool are never modified.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitWithWriter(cmd.ErrOrStderr(), logLevel, logFormat)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	flags.StringVarP(&projectArg, "dir", "C", "", "Project directory (default: current directory)")
	flags.StringVar(&profile, "profile", "", "AWS shared config profile")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newOutputCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
