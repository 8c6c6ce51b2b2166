package lint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"github.com/gnolang/closelint/internal"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	"github.com/gnolang/closelint/internal/disposable"
	"github.com/gnolang/closelint/internal/ignore"
	tt "github.com/gnolang/closelint/internal/types"
)

// ErrNoPackages is returned when the patterns match no Go package.
var ErrNoPackages = errors.New("no packages to lint")

type LintEngine interface {
	Run(ctx context.Context, filePath string) ([]tt.Issue, error)
	RunSource(ctx context.Context, source []byte) ([]tt.Issue, error)
	RunPackage(ctx context.Context, pkg *packages.Package) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnorePath(path string)
}

// New builds an engine configured by the file at configurationPath.
func New(rootDir string, configurationPath string, opts ...internal.EngineOption) (*internal.Engine, error) {
	config, err := LoadConfig(configurationPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(rootDir, config, opts...)
}

// NewFromConfig builds an engine from an already loaded configuration.
// opts are applied after the configuration, so a caller's cache wins.
func NewFromConfig(rootDir string, config Config, opts ...internal.EngineOption) (*internal.Engine, error) {
	analysis, err := AnalysisOptions(config)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]internal.EngineOption{internal.WithAnalysisOptions(analysis...)}, opts...)
	engine, err := internal.NewEngine(rootDir, config.Rules, engineOpts...)
	if err != nil {
		return nil, err
	}
	for _, pattern := range config.ExcludePaths {
		engine.IgnorePath(pattern)
	}
	return engine, nil
}

// AnalysisOptions translates the ownership settings of config.
func AnalysisOptions(config Config) ([]disposable.Option, error) {
	opts := []disposable.Option{
		disposable.WithFactories(config.Factories...),
		disposable.WithBorrowed(config.Borrowed...),
	}
	if len(config.IgnoreFiles) > 0 {
		list, err := ignore.Load(config.IgnoreFiles...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, disposable.WithIgnoreList(list))
	}
	return opts, nil
}

// CacheFingerprint identifies config and the contents of its ignore files.
func CacheFingerprint(config Config) (string, error) {
	return internal.HashFiles(config.Fingerprint(), config.IgnoreFiles...)
}

// LoadPackages type-checks the packages matched by patterns, relative to dir.
// Packages with type errors are kept; the analysis is best-effort on them.
func LoadPackages(ctx context.Context, logger *zap.Logger, dir string, tests bool, patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode:    internal.LoadMode,
		Dir:     dir,
		Tests:   tests,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("error loading packages: %w", err)
	}

	var loaded []*packages.Package
	for _, pkg := range pkgs {
		for _, perr := range pkg.Errors {
			if logger != nil {
				logger.Warn("package has errors", zap.String("package", pkg.PkgPath), zap.String("error", perr.Error()))
			}
		}
		if len(pkg.Syntax) > 0 && pkg.TypesInfo != nil {
			loaded = append(loaded, pkg)
		}
	}
	if len(loaded) == 0 {
		return nil, ErrNoPackages
	}
	return loaded, nil
}

// ProcessPackages lints pkgs concurrently. A failing package is logged and
// skipped; an abandoned analysis stops the whole run.
func ProcessPackages(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	pkgs []*packages.Package,
	processor func(context.Context, LintEngine, *packages.Package) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var bar *progressbar.ProgressBar
	if len(pkgs) > 1 {
		bar = progressbar.NewOptions(len(pkgs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("linting"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	var mu sync.Mutex
	var allIssues []tt.Issue
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			if bar != nil {
				defer bar.Add(1)
			}
			issues, err := processor(ctx, engine, pkg)
			if err != nil {
				if errors.Is(err, provenance.ErrAbandoned) {
					return err
				}
				if logger != nil {
					logger.Error("Error processing package", zap.String("package", pkg.PkgPath), zap.Error(err))
				}
				return nil
			}
			mu.Lock()
			allIssues = append(allIssues, issues...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		bar.Finish()
	}

	internal.SortIssues(allIssues)
	return allIssues, nil
}

func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	sources [][]byte,
	processor func(context.Context, LintEngine, []byte) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for i, source := range sources {
		issues, err := processor(ctx, engine, source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.Int("source", i), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}

	return allIssues, nil
}

func ProcessPackage(ctx context.Context, engine LintEngine, pkg *packages.Package) ([]tt.Issue, error) {
	return engine.RunPackage(ctx, pkg)
}

func ProcessFile(ctx context.Context, engine LintEngine, filePath string) ([]tt.Issue, error) {
	return engine.Run(ctx, filePath)
}

func ProcessSource(ctx context.Context, engine LintEngine, source []byte) ([]tt.Issue, error) {
	return engine.RunSource(ctx, source)
}
