package assistant

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
)

// SummaryAnswer is the exact classifier answer that selects the summary path
const SummaryAnswer = "data summary"

const generationPromptTemplate = `Context
----------
You are a developer who translates conversational questions into structured Looker URL queries based on the following instructions. The user can ask new questions or refine their previous questions by giving more context. This can require the addition or removal of dimensions.

Instructions:
- Choose only the fields in the provided LookML metadata.
- Prioritize the field description, label, tags, and name for what field(s) to use for a given description.
- Generate only one answer, no more.
- Use the Examples for guidance on how to structure the Looker URL query.
- Never respond with SQL; always return a Looker explore URL as a single string starting with fields=.
{{- if .Explore}}
- Every field belongs to the {{.Explore}} explore and is written with its view prefix, for example {{.Explore}}.<field>.
{{- end}}
- Refinement questions can include but are not limited to filter changes, additions or removals, requests to sort in a new way, requests to add dimensions, requests to remove dimensions, requests to change visualizations.
- If a change in visualization is requested, note that the new visualization might require necessary dimensions or the removal of dimensions for it to work properly.
- If a specific visualization is mentioned, prioritize that and adjust the URL query accordingly to ensure the visualization works.

LookML Metadata
----------
Dimensions are used to group by information (follow the instructions in tags when using a specific field; if map used include a location or lat long dimension):
{{range .Dimensions}}
{{field .}}
{{- end}}

Measures are used to perform calculations (if top, bottom, total, sum, etc. are used include a measure):
{{range .Measures}}
{{field .}}
{{- end}}

Example
----------
{{- range .Examples}}
input: "{{.Input}}" ; output: {{.Output}}
{{- end}}

Input
----------
{{.Prompt}}

Output
----------`

const correctivePromptTemplate = `Conversation so far
----------
{{- range .History}}
{{.Actor}}: {{.Text}}
{{- end}}

Question
----------
{{.Question}}

Task
----------
The first generated URL was incorrect and contained fields not present in the provided parameters and metadata. Generate a new URL that only includes the fields present in the metadata.
{{- if .Unknown}}
Fields not present in the metadata: {{join .Unknown ", "}}
{{- end}}
{{- if .Available}}
Fields present in the metadata: {{join .Available ", "}}
{{- end}}

Primer
----------
A user is interacting with an agent that is translating questions to a structured URL query based on the metadata parameters. Only include fields that are present in the metadata. Return a single string starting with fields=.

Please review the error and modify your request accordingly.`

const refinementPromptTemplate = `Primer
----------
A user is interactively asking questions to generate an explore URL in Looker. The user is refining their questions by adding more context. The additional prompts they are adding could have conflicting or duplicative information: in those cases, prefer the most recent prompt.

Here are some example prompts the user has asked so far and how to summarize them:
{{range .Examples}}
- The sequence of prompts from the user: {{quoteAll .Input}}. The summarized prompts: "{{.Output}}"
{{- end}}

Conversation so far
----------
input: {{range $i, $p := .Prompts}}{{if $i}}
{{end}}"{{$p}}"{{end}}

Task
----------
Summarize the prompts above to generate a single prompt that includes all the relevant information. If there are conflicting or duplicative information, prefer the most recent prompt.

Answer
----------`

const classificationPromptTemplate = `Primer
----------
A user is interacting with an agent that is translating questions to a structured URL query based on the following dictionary. The user is refining their questions by adding more context. You are a very smart observer that will look at one such question and determine whether the user is asking for a data summary, or whether they are continuing to refine their question.

Task
----------
Determine if the user is asking for a data summary or continuing to refine their question. If they are asking for a summary, they might say things like:

- summarize the data
- give me the data
- data summary
- tell me more about it
- explain to me what's going on
- summarization
- summarize
- summary

The user said:

{{.Prompt}}

Output
----------
Return "` + SummaryAnswer + `" if the user is asking for a data summary, and "refining question" if the user is continuing to refine their question. Only output one answer, no more. Only return one those two options. If you're not sure, return "refining question".`

const dataSummaryPromptTemplate = `Data
----------

{{.Data}}

Task
----------
Summarize the data above`

const slidePromptTemplate = `The following text represents summaries of a given dashboard's data.
Summaries: {{.Summary}}

Make this much more concise for a slide presentation using the following format. The summary should be a markdown document that contains a list of sections, each section should have the following details: a section title, which is the title for the given part of the summary, and key points which a list of key points for the concise summary. Data should be returned in each section, you will be penalized if it doesn't adhere to this format. Each summary should only be included once. Do not include the same summary twice.`

var funcs = template.FuncMap{
	"field": catalog.FormatField,
	"join":  strings.Join,
	"quoteAll": func(items []string) string {
		return `"` + strings.Join(items, `", "`) + `"`
	},
}

var (
	generationTmpl     = template.Must(template.New("generation").Funcs(funcs).Parse(generationPromptTemplate))
	correctiveTmpl     = template.Must(template.New("corrective").Funcs(funcs).Parse(correctivePromptTemplate))
	refinementTmpl     = template.Must(template.New("refinement").Funcs(funcs).Parse(refinementPromptTemplate))
	classificationTmpl = template.Must(template.New("classification").Parse(classificationPromptTemplate))
	dataSummaryTmpl    = template.Must(template.New("data-summary").Parse(dataSummaryPromptTemplate))
	slideTmpl          = template.Must(template.New("slide").Parse(slidePromptTemplate))
)

// GenerationParams contains everything the generation prompt embeds
type GenerationParams struct {
	Explore    string
	Dimensions []catalog.Field
	Measures   []catalog.Field
	Examples   []catalog.GenerationExample
	Prompt     string
}

// GenerationPrompt builds the prompt that turns a question into an explore URL
func GenerationPrompt(params GenerationParams) string {
	return render(generationTmpl, params)
}

// CorrectiveParams contains the inputs of the corrective prompt
type CorrectiveParams struct {
	History   []Message
	Question  string
	Unknown   []string
	Available []string
	Window    int
}

// CorrectivePrompt builds the follow-up request sent after a validation
// failure. Only the last Window messages are considered and messages that
// carry an explore URL are left out.
func CorrectivePrompt(params CorrectiveParams) string {
	var history []Message
	for _, m := range Recent(params.History, params.Window) {
		if m.ExploreURL != "" {
			continue
		}
		history = append(history, m)
	}

	return render(correctiveTmpl, struct {
		History   []Message
		Question  string
		Unknown   []string
		Available []string
	}{history, params.Question, params.Unknown, params.Available})
}

// RefinementPrompt builds the prompt that merges a sequence of prompts into one
func RefinementPrompt(examples []catalog.RefinementExample, prompts []string) string {
	return render(refinementTmpl, struct {
		Examples []catalog.RefinementExample
		Prompts  []string
	}{examples, prompts})
}

// ClassificationPrompt builds the summary-vs-refinement classifier prompt
func ClassificationPrompt(prompt string) string {
	return render(classificationTmpl, struct{ Prompt string }{prompt})
}

// DataSummaryPrompt asks for a summary of query results
func DataSummaryPrompt(data string) string {
	return render(dataSummaryTmpl, struct{ Data string }{data})
}

// SlidePrompt asks to rewrite a summary into titled sections of key points
func SlidePrompt(summary string) string {
	return render(slideTmpl, struct{ Summary string }{summary})
}

func render(tmpl *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}
