package ensemble

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/template"

	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

const synthesisPromptTemplate = `
Role
You are an expert synthesis judge and careful editor. Your job is to combine multiple AI model responses into one best-possible answer to the user.

User's original prompt:
{{.Prompt}}

Model responses:
{{range .Responses}}
--- Model: {{.ModelID}} ---
{{.Content}}

{{end}}
Task
Produce ONE final answer that directly addresses the user's original prompt by synthesizing the model responses.
- Extract the strongest points that are supported and/or repeated across responses.
- Prefer statements that are more logically sound, more specific, and better justified.
- Output ONLY the final synthesized answer. No preamble, no mention of models or consensus.
`

var synthesisTmpl = template.Must(template.New("synthesis").Parse(synthesisPromptTemplate))

const highlightsPromptTemplate = `
Below is a synthesized answer followed by the model responses it was built from.

Synthesized answer:
%s

Model responses:
%s

For each model that contributed a distinct point to the synthesized answer, quote the exact excerpt of that model's response that was used.
Return ONLY a JSON array of objects with keys "modelId" and "excerpt". Return [] if no clear attribution exists.
`

// synthesize runs the judge over a set of responses. A single response is
// returned as-is, matching the UI's expectation for one-model runs.
func synthesize(ctx context.Context, judge llm.Client, prompt string, responses []schema.ModelResponse) (string, error) {
	if len(responses) == 0 {
		return "", fmt.Errorf("no responses to synthesize")
	}
	if len(responses) == 1 {
		return responses[0].Content, nil
	}

	data := struct {
		Prompt    string
		Responses []schema.ModelResponse
	}{Prompt: prompt, Responses: responses}

	var buf bytes.Buffer
	if err := synthesisTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing synthesis template: %w", err)
	}

	out, err := judge.Generate(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("judge query failed: %w", err)
	}
	return out, nil
}

func (e *Engine) runStandard(ctx context.Context, prompt string, res *schema.EnsembleResult) error {
	judge, err := e.judge(ctx)
	if err != nil {
		return err
	}

	synthesis, err := synthesize(ctx, judge, prompt, res.Responses)
	if err != nil {
		return err
	}
	res.Synthesis = synthesis
	res.Standard = &schema.StandardFields{
		SourceHighlights: e.extractHighlights(ctx, judge, synthesis, res.Responses),
	}
	return nil
}

// extractHighlights is best effort: highlights are optional in the result
// schema, so parse failures degrade to none rather than failing the run.
func (e *Engine) extractHighlights(ctx context.Context, judge llm.Client, synthesis string, responses []schema.ModelResponse) []schema.SourceHighlight {
	if len(responses) < 2 {
		return nil
	}

	var sources string
	for _, r := range responses {
		sources += fmt.Sprintf("--- %s ---\n%s\n\n", r.ModelID, r.Content)
	}

	out, err := judge.Generate(ctx, fmt.Sprintf(highlightsPromptTemplate, synthesis, sources))
	if err != nil {
		log.Printf("highlight extraction failed: %v", err)
		return nil
	}

	highlights, err := llm.ParseJSON[[]schema.SourceHighlight](out)
	if err != nil {
		log.Printf("could not parse highlights: %v", err)
		return nil
	}

	known := make(map[string]bool, len(responses))
	for _, r := range responses {
		known[r.ModelID] = true
	}
	kept := highlights[:0]
	for _, h := range highlights {
		if known[h.ModelID] && h.Excerpt != "" {
			kept = append(kept, h)
		}
	}
	return kept
}
