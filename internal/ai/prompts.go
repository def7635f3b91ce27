package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/extract.md
var extractPromptRaw string

//go:embed prompts/filter.md
var filterPromptRaw string

//go:embed prompts/summary.md
var summaryPromptRaw string

// Templates are parsed once at package init and reused on every call.
var (
	ExtractTemplate = template.Must(template.New("extract").Parse(extractPromptRaw))
	FilterTemplate  = template.Must(template.New("filter").Parse(filterPromptRaw))
	SummaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(summaryPromptRaw))
)

// ExtractPromptData is the input to ExtractTemplate.
type ExtractPromptData struct {
	Source  string
	Content string
	Strict  bool
}
