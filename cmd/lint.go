package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/closelint/formatter"
	"github.com/gnolang/closelint/internal"
	tt "github.com/gnolang/closelint/internal/types"
	"github.com/gnolang/closelint/lint"
)

var (
	ignoreRules    string
	ignorePaths    string
	lintJsonOutput bool
	outPath        string
	watchMode      bool
	cacheDir       string
	includeTests   bool
)

var lintCmd = &cobra.Command{
	Use:   "lint [packages...]",
	Short: "Report resources that are closed by the wrong owner or never closed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLint,
}

func init() {
	lintCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of lint rules to ignore")
	lintCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths to ignore")
	lintCmd.Flags().BoolVar(&lintJsonOutput, "json", false, "Output issues in JSON format")
	lintCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	lintCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Re-lint files as they change")
	lintCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Reuse results of unchanged packages stored in this directory")
	lintCmd.Flags().BoolVar(&includeTests, "tests", false, "Also lint test files")
}

func runLint(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	if watchMode {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return engine.Watch(ctx, watchDirs(args), func(_ string, issues []tt.Issue) {
			printText(cmd.OutOrStdout(), issues)
		})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pkgs, err := lint.LoadPackages(ctx, logger, ".", includeTests, args...)
	if err != nil {
		return err
	}
	issues, err := lint.ProcessPackages(ctx, logger, engine, pkgs, lint.ProcessPackage)
	if err != nil {
		return fmt.Errorf("error processing packages: %w", err)
	}

	if err := printIssues(cmd.OutOrStdout(), issues, lintJsonOutput, outPath); err != nil {
		return err
	}
	if failing(issues) {
		return ErrIssuesFound
	}
	return nil
}

func newEngine() (*internal.Engine, error) {
	config, err := lint.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	opts := []internal.EngineOption{internal.WithLogger(logger)}
	if cacheDir != "" {
		cache, err := internal.NewCache(cacheDir)
		if err != nil {
			return nil, err
		}
		fingerprint, err := lint.CacheFingerprint(config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, internal.WithCache(cache, fingerprint))
	}

	engine, err := lint.NewFromConfig(".", config, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing lint engine: %w", err)
	}
	for _, rule := range splitList(ignoreRules) {
		engine.IgnoreRule(rule)
	}
	for _, path := range splitList(ignorePaths) {
		engine.IgnorePath(path)
	}
	return engine, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// watchDirs turns package patterns into the directories they live in.
func watchDirs(patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, pattern := range patterns {
		dir := filepath.Clean(strings.TrimSuffix(pattern, "..."))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dir = filepath.Dir(dir)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// failing reports whether any issue is louder than INFO.
func failing(issues []tt.Issue) bool {
	for _, issue := range issues {
		if issue.Severity < tt.SeverityInfo {
			return true
		}
	}
	return false
}

func printIssues(w io.Writer, issues []tt.Issue, isJson bool, jsonOutput string) error {
	if !isJson {
		printText(w, issues)
		return nil
	}

	if jsonOutput == "" {
		return formatter.WriteJSON(w, issues)
	}
	f, err := os.Create(jsonOutput)
	if err != nil {
		return fmt.Errorf("error creating JSON output file: %w", err)
	}
	if err := formatter.WriteJSON(f, issues); err != nil {
		f.Close()
		return fmt.Errorf("error writing JSON output file: %w", err)
	}
	return f.Close()
}

func printText(w io.Writer, issues []tt.Issue) {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	for _, filename := range sortedFiles {
		sourceCode, err := internal.ReadSourceCode(filename)
		if err != nil {
			logger.Warn("Error reading source file", zap.String("file", filename), zap.Error(err))
		}
		fmt.Fprintln(w, formatter.GenerateFormattedIssue(issuesByFile[filename], sourceCode))
	}
}
