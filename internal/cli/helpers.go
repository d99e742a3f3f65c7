package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/eval"
	"github.com/picklr-io/shipyard/internal/ir"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// colorize returns code unless colors are disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// projectDir returns the directory holding the project configuration.
func projectDir() (string, error) {
	if projectArg != "" {
		dir, err := filepath.Abs(projectArg)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %s: %w", projectArg, err)
		}
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

func loadProject(ctx context.Context, dir string, resolver eval.ValueResolver, props map[string]string) (*ir.Project, error) {
	var opts []eval.LoaderOption
	if resolver != nil {
		opts = append(opts, eval.WithResolver(resolver))
	}
	if len(props) > 0 {
		opts = append(opts, eval.WithProperties(props))
	}
	p, err := eval.NewLoader(dir, opts...).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return p, nil
}

// outcomeSymbol returns the marker and color printed next to a stage.
func outcomeSymbol(o engine.Outcome) (string, string) {
	switch o {
	case engine.Created:
		return "+", colorGreen
	case engine.Updated:
		return "~", colorYellow
	case engine.Skipped:
		return "-", colorGray
	default:
		return "=", colorReset
	}
}

// progressPrinter reports finished stages as the orchestrator goes.
func progressPrinter(w io.Writer) engine.ApplyCallback {
	return func(ev engine.ApplyEvent) {
		switch ev.Status {
		case "completed", "skipped":
			symbol, color := outcomeSymbol(ev.Outcome)
			fmt.Fprintf(w, "%s  %s %s%s (%s%s)\n",
				colorize(color), symbol, ev.Stage, colorize(colorReset), ev.Outcome, formatDuration(ev.Duration))
		case "failed":
			fmt.Fprintf(w, "%s  ! %s failed%s: %v\n", colorize(colorRed), ev.Stage, colorize(colorReset), ev.Error)
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return ""
	}
	return ", " + d.Round(time.Second).String()
}

// renderSummary prints outcome counts of a run.
func renderSummary(w io.Writer, results []*engine.Result) {
	counts := make(map[engine.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	fmt.Fprintf(w, "%d created, %d updated, %d unchanged, %d skipped.\n",
		counts[engine.Created], counts[engine.Updated], counts[engine.Unchanged], counts[engine.Skipped])
}

// renderResult prints one recorded result with its outputs.
func renderResult(w io.Writer, r *engine.Result) {
	symbol, color := outcomeSymbol(r.Outcome)
	fmt.Fprintf(w, "%s%s %s%s %s\n", colorize(color), symbol, r.Stage, colorize(colorReset), r.RemoteID)

	keys := make([]string, 0, len(r.Outputs))
	for k := range r.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "    %s = %s\n", k, r.Outputs[k])
	}
}
