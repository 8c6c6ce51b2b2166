package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gnolang/closelint/lint"
)

var (
	funcName        string
	traceJsonOutput bool
)

var traceCmd = &cobra.Command{
	Use:   "trace [packages...]",
	Short: "Show where the resources returned by a function come from",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if funcName == "" {
			return fmt.Errorf("--func is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		config, err := lint.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		opts, err := lint.AnalysisOptions(config)
		if err != nil {
			return err
		}
		pkgs, err := lint.LoadPackages(ctx, logger, ".", includeTests, args...)
		if err != nil {
			return err
		}
		results, err := lint.Trace(ctx, pkgs, funcName, opts...)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no function %q returning a resource", funcName)
		}
		return printTrace(cmd.OutOrStdout(), results, traceJsonOutput)
	},
}

func init() {
	traceCmd.Flags().StringVar(&funcName, "func", "", "Function to trace, e.g. Open or Pool.Get")
	traceCmd.Flags().BoolVar(&traceJsonOutput, "json", false, "Output the trace in JSON format")
	traceCmd.Flags().BoolVar(&includeTests, "tests", false, "Also load test files")
}

var (
	funcStyle  = color.New(color.FgCyan, color.Bold)
	classStyle = color.New(color.FgYellow, color.Bold)
	kindStyle  = color.New(color.FgGreen)
)

func printTrace(w io.Writer, results []lint.TraceResult, isJson bool) error {
	if isJson {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	for _, r := range results {
		fmt.Fprintf(w, "%s result %d (%s): %s\n",
			funcStyle.Sprint(r.Func), r.Result, r.Type, classStyle.Sprint(r.Classification))
		fmt.Fprintf(w, "  declared at %s\n", r.Position)
		for _, o := range r.Origins {
			fmt.Fprintf(w, "  %s  %s  %s\n", o.Position, o.Expr, kindStyle.Sprint(o.Kind))
		}
	}
	return nil
}
