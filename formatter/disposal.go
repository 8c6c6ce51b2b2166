package formatter

// DisposalIssueFormatter adds a line on who owns the resource to the
// general layout.
type DisposalIssueFormatter struct{}

func (f *DisposalIssueFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn}}` +
		`{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding}}` +
		`{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent}}` +
		`{{help .Rule .Padding}}` +
		`{{suggestion .Suggestion .Padding .MaxLineNumWidth .StartLine}}` +
		`{{note .Note}}` + "\n"
}

var helpTexts = map[string]string{
	ReturnDisposed:         "the caller owns a returned resource and expects it open",
	CloseInjected:          "whoever created or handed over the value closes it",
	ReturnCachedAndCreated: "callers cannot tell whether to close the result",
	CloseBeforeReassign:    "the previous value is lost once the variable is overwritten",
	DiscardedCreation:      "nothing can close a resource no variable holds",
}

func help(rule string, padding string) string {
	text, ok := helpTexts[rule]
	if !ok {
		return ""
	}
	return lineStyle.Sprintf("%s= ", padding) + helpStyle.Sprint("help: ") + text + "\n"
}
