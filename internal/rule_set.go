package internal

import (
	"go/ast"

	"github.com/gnolang/closelint/internal/lints"
	tt "github.com/gnolang/closelint/internal/types"
)

/*
* Implement each lint rule as a separate struct
 */

// LintRule defines the interface for all lint rules.
type LintRule interface {
	// Check runs the lint rule on one file of the analyzed package.
	Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error)

	// Name returns the name of the lint rule.
	Name() string

	Severity() tt.Severity
	SetSeverity(tt.Severity)
}

type ReturnDisposedRule struct {
	severity tt.Severity
}

func NewReturnDisposedRule() LintRule {
	return &ReturnDisposedRule{severity: tt.SeverityError}
}

func (r *ReturnDisposedRule) Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error) {
	return lints.DetectReturnDisposed(rc, file)
}

func (r *ReturnDisposedRule) Name() string {
	return "return-disposed"
}

func (r *ReturnDisposedRule) Severity() tt.Severity {
	return r.severity
}

func (r *ReturnDisposedRule) SetSeverity(severity tt.Severity) {
	r.severity = severity
}

type CloseInjectedRule struct {
	severity tt.Severity
}

func NewCloseInjectedRule() LintRule {
	return &CloseInjectedRule{severity: tt.SeverityWarning}
}

func (r *CloseInjectedRule) Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error) {
	return lints.DetectCloseInjected(rc, file)
}

func (r *CloseInjectedRule) Name() string {
	return "close-injected"
}

func (r *CloseInjectedRule) Severity() tt.Severity {
	return r.severity
}

func (r *CloseInjectedRule) SetSeverity(severity tt.Severity) {
	r.severity = severity
}

type ReturnCachedAndCreatedRule struct {
	severity tt.Severity
}

func NewReturnCachedAndCreatedRule() LintRule {
	return &ReturnCachedAndCreatedRule{severity: tt.SeverityWarning}
}

func (r *ReturnCachedAndCreatedRule) Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error) {
	return lints.DetectReturnCachedAndCreated(rc, file)
}

func (r *ReturnCachedAndCreatedRule) Name() string {
	return "return-cached-and-created"
}

func (r *ReturnCachedAndCreatedRule) Severity() tt.Severity {
	return r.severity
}

func (r *ReturnCachedAndCreatedRule) SetSeverity(severity tt.Severity) {
	r.severity = severity
}

type CloseBeforeReassignRule struct {
	severity tt.Severity
}

func NewCloseBeforeReassignRule() LintRule {
	return &CloseBeforeReassignRule{severity: tt.SeverityError}
}

func (r *CloseBeforeReassignRule) Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error) {
	return lints.DetectCloseBeforeReassign(rc, file)
}

func (r *CloseBeforeReassignRule) Name() string {
	return "close-before-reassign"
}

func (r *CloseBeforeReassignRule) Severity() tt.Severity {
	return r.severity
}

func (r *CloseBeforeReassignRule) SetSeverity(severity tt.Severity) {
	r.severity = severity
}

// -----------------------------------------------------------------------------

// DiscardedCreationRule is noisy on code that creates resources for their
// side effects only, so it reports as info by default.
type DiscardedCreationRule struct {
	severity tt.Severity
}

func NewDiscardedCreationRule() LintRule {
	return &DiscardedCreationRule{severity: tt.SeverityInfo}
}

func (r *DiscardedCreationRule) Check(rc *lints.RuleContext, file *ast.File) ([]tt.Issue, error) {
	return lints.DetectDiscardedCreation(rc, file)
}

func (r *DiscardedCreationRule) Name() string {
	return "discarded-creation"
}

func (r *DiscardedCreationRule) Severity() tt.Severity {
	return r.severity
}

func (r *DiscardedCreationRule) SetSeverity(severity tt.Severity) {
	r.severity = severity
}
