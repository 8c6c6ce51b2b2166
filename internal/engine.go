package internal

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"github.com/gnolang/closelint/internal/analysis/program"
	"github.com/gnolang/closelint/internal/analysis/provenance"
	"github.com/gnolang/closelint/internal/disposable"
	"github.com/gnolang/closelint/internal/lints"
	"github.com/gnolang/closelint/internal/nolint"
	tt "github.com/gnolang/closelint/internal/types"
)

// LoadMode is what the engine needs from go/packages.
const LoadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports

// Engine manages the linting process.
type Engine struct {
	rootDir      string
	ignoredRules map[string]bool
	ignoredPaths []string
	pathMatcher  *gitignore.GitIgnore
	rules        map[string]LintRule
	analysis     []disposable.Option
	logger       *zap.Logger
	cache        *Cache
	fingerprint  string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAnalysisOptions passes options to the disposal analyzer of every package.
func WithAnalysisOptions(opts ...disposable.Option) EngineOption {
	return func(e *Engine) {
		e.analysis = append(e.analysis, opts...)
	}
}

// WithCache reuses the issues of unchanged packages. fingerprint identifies
// the configuration the cached issues were computed with.
func WithCache(cache *Cache, fingerprint string) EngineOption {
	return func(e *Engine) {
		e.cache = cache
		e.fingerprint = fingerprint
	}
}

// NewEngine creates a new lint engine.
func NewEngine(rootDir string, rules map[string]tt.ConfigRule, opts ...EngineOption) (*Engine, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("error resolving root directory: %w", err)
	}
	engine := &Engine{
		rootDir: absRoot,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.applyRules(rules)

	return engine, nil
}

// Define the ruleConstructor type
type ruleConstructor func() LintRule

// Define the ruleMap type
type ruleMap map[string]ruleConstructor

// Create a map to hold the mappings of rule names to their constructors
var allRuleConstructors = ruleMap{
	"return-disposed":           NewReturnDisposedRule,
	"close-injected":            NewCloseInjectedRule,
	"return-cached-and-created": NewReturnCachedAndCreatedRule,
	"close-before-reassign":     NewCloseBeforeReassignRule,
	"discarded-creation":        NewDiscardedCreationRule,
}

// DefaultRules returns every known rule with its default severity.
func DefaultRules() map[string]tt.ConfigRule {
	rules := make(map[string]tt.ConfigRule, len(allRuleConstructors))
	for key, newRuleCstr := range allRuleConstructors {
		rules[key] = tt.ConfigRule{Severity: newRuleCstr().Severity()}
	}
	return rules
}

func (e *Engine) applyRules(rules map[string]tt.ConfigRule) {
	e.rules = make(map[string]LintRule)
	e.registerDefaultRules()

	// Iterate over the rules and apply severity
	for key, rule := range rules {
		r := e.findRule(key)
		if r == nil {
			newRuleCstr := allRuleConstructors[key]
			if newRuleCstr == nil {
				e.logger.Warn("unknown rule in configuration", zap.String("rule", key))
				continue
			}
			if rule.Severity == tt.SeverityOff {
				continue
			}
			newRule := newRuleCstr()
			newRule.SetSeverity(rule.Severity)
			e.rules[key] = newRule
			continue
		}
		if rule.Severity == tt.SeverityOff {
			e.IgnoreRule(key)
		}
		r.SetSeverity(rule.Severity)
	}
}

func (e *Engine) registerDefaultRules() {
	for key, newRuleCstr := range allRuleConstructors {
		newRule := newRuleCstr()
		if newRule.Severity() != tt.SeverityOff {
			e.rules[key] = newRule
		}
	}
}

func (e *Engine) findRule(name string) LintRule {
	if rule, ok := e.rules[name]; ok {
		return rule
	}
	return nil
}

// Rules returns the names of the active rules, sorted.
func (e *Engine) Rules() []string {
	var names []string
	for name := range e.rules {
		if !e.ignoredRules[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) IgnoreRule(rule string) {
	if e.ignoredRules == nil {
		e.ignoredRules = make(map[string]bool)
	}
	e.ignoredRules[rule] = true
}

// IgnorePath skips files matching a gitignore-style pattern relative to the root.
func (e *Engine) IgnorePath(pattern string) {
	e.ignoredPaths = append(e.ignoredPaths, pattern)
	e.pathMatcher = gitignore.CompileIgnoreLines(e.ignoredPaths...)
}

func (e *Engine) isIgnoredPath(filename string) bool {
	if e.pathMatcher == nil || filename == "" {
		return false
	}
	rel, err := filepath.Rel(e.rootDir, filename)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filename
	}
	return e.pathMatcher.MatchesPath(filepath.ToSlash(rel))
}

// RunPackage lints every file of a package loaded with LoadMode.
func (e *Engine) RunPackage(ctx context.Context, pkg *packages.Package) ([]tt.Issue, error) {
	var hash string
	if e.cache != nil {
		var err error
		hash, err = HashFiles(e.fingerprint, pkg.CompiledGoFiles...)
		if err == nil {
			if issues, ok := e.cache.Get(pkg.PkgPath, hash); ok {
				e.logger.Debug("cache hit", zap.String("package", pkg.PkgPath))
				return issues, nil
			}
		}
	}

	p, err := program.FromPackage(pkg)
	if err != nil {
		return nil, err
	}
	issues, err := e.RunProgram(ctx, p)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && hash != "" {
		if err := e.cache.Set(pkg.PkgPath, hash, issues); err != nil {
			e.logger.Warn("error updating cache", zap.String("package", pkg.PkgPath), zap.Error(err))
		}
	}
	return issues, nil
}

// Run lints the package containing filename and returns the issues of that file.
func (e *Engine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	cfg := &packages.Config{Context: ctx, Mode: LoadMode, Dir: filepath.Dir(abs)}
	pkgs, err := packages.Load(cfg, "file="+abs)
	if err != nil || len(pkgs) == 0 || len(pkgs[0].Syntax) == 0 {
		e.logger.Debug("falling back to single file analysis", zap.String("file", abs), zap.Error(err))
		source, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("error reading file: %w", err)
		}
		p, err := program.FromSource(abs, string(source))
		if err != nil {
			return nil, err
		}
		return e.RunProgram(ctx, p)
	}

	issues, err := e.RunPackage(ctx, pkgs[0])
	if err != nil {
		return nil, err
	}
	var own []tt.Issue
	for _, issue := range issues {
		if issue.Filename == abs {
			own = append(own, issue)
		}
	}
	return own, nil
}

// RunSource lints source as a standalone file.
func (e *Engine) RunSource(ctx context.Context, source []byte) ([]tt.Issue, error) {
	p, err := program.FromSource("source.go", string(source))
	if err != nil {
		return nil, fmt.Errorf("error parsing content: %w", err)
	}
	return e.RunProgram(ctx, p)
}

// RunProgram applies all lint rules to the files of p.
func (e *Engine) RunProgram(ctx context.Context, p *program.Program) ([]tt.Issue, error) {
	analyzer := disposable.New(p, e.analysis...)

	var allIssues []tt.Issue
	for _, f := range p.Files {
		filename := p.Fset.Position(f.Pos()).Filename
		if e.isIgnoredPath(filename) {
			continue
		}
		issues, err := e.runFile(ctx, analyzer, f, filename)
		if err != nil {
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}
	SortIssues(allIssues)
	return allIssues, nil
}

func (e *Engine) runFile(ctx context.Context, analyzer *disposable.Analyzer, f *ast.File, filename string) ([]tt.Issue, error) {
	nolintMgr := nolint.ParseComments(f, analyzer.Program().Fset)

	var g errgroup.Group
	var mu sync.Mutex

	var allIssues []tt.Issue
	for _, rule := range e.rules {
		if e.ignoredRules[rule.Name()] {
			continue
		}
		r := rule
		g.Go(func() error {
			rc := lints.NewRuleContext(ctx, filename, analyzer, r.Severity())
			issues, err := r.Check(rc, f)
			if err != nil {
				// a partial answer would read as "no issues"
				if errors.Is(err, provenance.ErrAbandoned) {
					return err
				}
				e.logger.Warn("rule failed", zap.String("rule", r.Name()), zap.String("file", filename), zap.Error(err))
				return nil
			}

			nolinted := nolintMgr.Filter(issues)

			mu.Lock()
			allIssues = append(allIssues, nolinted...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return allIssues, nil
}

// SortIssues orders issues by file, position and rule.
func SortIssues(issues []tt.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		if a.Start.Column != b.Start.Column {
			return a.Start.Column < b.Start.Column
		}
		return a.Rule < b.Rule
	})
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}
