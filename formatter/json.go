package formatter

import (
	"encoding/json"
	"io"

	tt "github.com/gnolang/closelint/internal/types"
)

// jsonIssue is the stable wire shape of an issue.
type jsonIssue struct {
	Rule       string      `json:"rule"`
	Category   string      `json:"category"`
	Severity   tt.Severity `json:"severity"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Note       string      `json:"note,omitempty"`
	Start      jsonPos     `json:"start"`
	End        jsonPos     `json:"end"`
}

type jsonPos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// WriteJSON writes issues grouped by file name.
func WriteJSON(w io.Writer, issues []tt.Issue) error {
	byFile := make(map[string][]jsonIssue)
	for _, issue := range issues {
		byFile[issue.Filename] = append(byFile[issue.Filename], jsonIssue{
			Rule:       issue.Rule,
			Category:   issue.Category,
			Severity:   issue.Severity,
			Message:    issue.Message,
			Suggestion: issue.Suggestion,
			Note:       issue.Note,
			Start:      jsonPos{Line: issue.Start.Line, Column: issue.Start.Column},
			End:        jsonPos{Line: issue.End.Line, Column: issue.End.Column},
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(byFile)
}
