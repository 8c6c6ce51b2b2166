// Package internal provides the linting engine of closelint.
//
// The engine runs a set of disposal rules over type-checked packages. Every
// rule sees the same disposable.Analyzer for a package, so provenance
// queries made by one rule are answered from the shared program indexes.
//
// Key components:
//
// Engine: loads rules with their configured severity, runs them over the
// files of a package and filters issues suppressed by comments.
//
// LintRule: the contract every rule implements. Check returns the issues of
// one file, or an error wrapping provenance.ErrAbandoned when the context
// was cancelled mid-query.
//
// Cache: issues of unchanged packages, stored compressed between runs.
//
// Usage:
//
//	engine, err := internal.NewEngine(".", config.Rules, internal.WithLogger(logger))
//	if err != nil {
//	    // handle error
//	}
//
//	issues, err := engine.RunPackage(ctx, pkg)
//	if err != nil {
//	    // handle error
//	}
package internal
