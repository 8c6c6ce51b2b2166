// Package analyzer exposes the closelint rules as a go/analysis pass, for
// use with singlechecker, multichecker or golangci-lint plugins.
package analyzer

import (
	"context"
	"go/ast"
	"go/token"
	"strings"

	"golang.org/x/tools/go/analysis"

	"github.com/gnolang/closelint/internal"
	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/disposable"
	"github.com/gnolang/closelint/internal/ignore"
	tt "github.com/gnolang/closelint/internal/types"
)

// Analyzer reports resources that are closed by the wrong owner, closed too
// early or never closed.
var Analyzer = &analysis.Analyzer{
	Name: "closelint",
	Doc:  "check that closeable values are closed exactly by their owner",
	Run:  run,
}

var (
	factories   commaList // qualified names of functions returning owned resources
	borrowed    commaList // qualified names of functions returning borrowed resources
	ignoreFiles commaList
	disable     commaList // rule names

	excludeGenerated bool
)

type commaList []string

func (c *commaList) String() string {
	return strings.Join(*c, ",")
}

func (c *commaList) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*c = append(*c, item)
		}
	}
	return nil
}

func init() {
	Analyzer.Flags.Var(&factories, "factories", "comma-separated functions whose results the caller owns")
	Analyzer.Flags.Var(&borrowed, "borrowed", "comma-separated functions whose results the caller must not close")
	Analyzer.Flags.Var(&ignoreFiles, "ignore-files", "comma-separated ignore list files")
	Analyzer.Flags.Var(&disable, "disable", "comma-separated rules to turn off")
	Analyzer.Flags.BoolVar(&excludeGenerated, "exclude-generated", true, "skip files marked with '// Code generated' comments")
}

func run(pass *analysis.Pass) (any, error) {
	opts := []disposable.Option{
		disposable.WithFactories(factories...),
		disposable.WithBorrowed(borrowed...),
	}
	if len(ignoreFiles) > 0 {
		list, err := ignore.Load(ignoreFiles...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, disposable.WithIgnoreList(list))
	}

	rules := make(map[string]tt.ConfigRule, len(disable))
	for _, name := range disable {
		rules[name] = tt.ConfigRule{Severity: tt.SeverityOff}
	}
	engine, err := internal.NewEngine(".", rules, internal.WithAnalysisOptions(opts...))
	if err != nil {
		return nil, err
	}

	p := program.New(pass.Fset, pass.Files, pass.Pkg, pass.TypesInfo)
	issues, err := engine.RunProgram(context.Background(), p)
	if err != nil {
		return nil, err
	}

	files := reportedFiles(pass)
	for _, issue := range issues {
		tf, ok := files[issue.Filename]
		if !ok {
			continue
		}
		pass.Report(analysis.Diagnostic{
			Pos:      tf.Pos(issue.Start.Offset),
			End:      tf.Pos(issue.End.Offset),
			Category: issue.Rule,
			Message:  issue.Rule + ": " + issue.Message,
		})
	}
	return nil, nil
}

// reportedFiles maps the names of the files diagnostics may point into.
func reportedFiles(pass *analysis.Pass) map[string]*token.File {
	files := make(map[string]*token.File, len(pass.Files))
	for _, f := range pass.Files {
		if excludeGenerated && ast.IsGenerated(f) {
			continue
		}
		tf := pass.Fset.File(f.Pos())
		if tf != nil {
			files[tf.Name()] = tf
		}
	}
	return files
}
