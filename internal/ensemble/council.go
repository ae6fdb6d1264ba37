package ensemble

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

const deliberationPromptTemplate = `
You are {{.Self}}, one member of a council of AI models answering this prompt:
{{.Prompt}}

Your previous statement:
{{.Own}}

The other members' latest statements:
{{range .Others}}
--- {{.ModelID}} ---
{{.Content}}

{{end}}
Revise your statement in light of the others. Concede points that are better
argued, defend points you still believe are correct, and keep it concise.
Output ONLY your revised statement.
`

var deliberationTmpl = template.Must(template.New("deliberation").Parse(deliberationPromptTemplate))

const votePromptTemplate = `
A council of AI models deliberated on this prompt:
%s

Final statements:
%s

You are %s. Vote for the member whose final statement best answers the prompt.
Voting for yourself is allowed but only if your statement is genuinely strongest.
Return ONLY a JSON object: {"vote": "<member id>"}
`

type councilVote struct {
	Vote string `json:"vote"`
}

func (e *Engine) runCouncil(ctx context.Context, prompt string, res *schema.EnsembleResult) error {
	judge, err := e.judge(ctx)
	if err != nil {
		return err
	}
	responses := res.Responses
	if len(responses) < 2 {
		return fmt.Errorf("council strategy needs at least 2 responses, got %d", len(responses))
	}

	// Round 1 is the opening statements from the fan-out.
	current := make([]schema.CouncilStatement, len(responses))
	for i, r := range responses {
		current[i] = schema.CouncilStatement{ModelID: r.ModelID, Content: r.Content}
	}
	rounds := []schema.DeliberationRound{{Round: 1, Statements: current}}

	for round := 2; round <= e.cfg.CouncilRounds+1; round++ {
		next := make([]schema.CouncilStatement, len(current))
		g, gctx := errgroup.WithContext(ctx)
		for i, stmt := range current {
			i, stmt := i, stmt
			g.Go(func() error {
				client, err := e.registry.Get(gctx, stmt.ModelID)
				if err != nil {
					return err
				}

				others := make([]schema.CouncilStatement, 0, len(current)-1)
				for j, other := range current {
					if j != i {
						others = append(others, other)
					}
				}
				var buf bytes.Buffer
				if err := deliberationTmpl.Execute(&buf, struct {
					Self, Prompt, Own string
					Others            []schema.CouncilStatement
				}{stmt.ModelID, prompt, stmt.Content, others}); err != nil {
					return err
				}

				revised, err := client.Generate(gctx, buf.String())
				if err != nil {
					// A silent member keeps its previous statement.
					log.Printf("council member %s failed in round %d: %v", stmt.ModelID, round, err)
					revised = stmt.Content
				}
				next[i] = schema.CouncilStatement{ModelID: stmt.ModelID, Content: revised}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		current = next
		rounds = append(rounds, schema.DeliberationRound{Round: round, Statements: current})
	}

	votes, err := e.collectVotes(ctx, prompt, current)
	if err != nil {
		return err
	}

	metrics := tallyVotes(len(rounds), votes)

	// The chairman synthesizes from the final statements.
	final := make([]schema.ModelResponse, len(current))
	for i, stmt := range current {
		final[i] = schema.ModelResponse{ModelID: stmt.ModelID, Content: stmt.Content}
	}
	synthesis, err := synthesize(ctx, judge, prompt, final)
	if err != nil {
		return err
	}

	res.Synthesis = synthesis
	res.Council = &schema.CouncilFields{
		Rounds:           rounds,
		FinalVotes:       votes,
		ConsensusMetrics: metrics,
	}
	return nil
}

func (e *Engine) collectVotes(ctx context.Context, prompt string, statements []schema.CouncilStatement) (map[string]string, error) {
	valid := make(map[string]bool, len(statements))
	var ballot string
	for _, s := range statements {
		valid[s.ModelID] = true
		ballot += fmt.Sprintf("--- %s ---\n%s\n\n", s.ModelID, s.Content)
	}

	var mu sync.Mutex
	votes := make(map[string]string, len(statements))

	g, gctx := errgroup.WithContext(ctx)
	for _, stmt := range statements {
		stmt := stmt
		g.Go(func() error {
			client, err := e.registry.Get(gctx, stmt.ModelID)
			if err != nil {
				return err
			}
			out, err := client.Generate(gctx, fmt.Sprintf(votePromptTemplate, prompt, ballot, stmt.ModelID))
			if err != nil {
				log.Printf("council member %s abstained: %v", stmt.ModelID, err)
				return nil
			}
			v, err := llm.ParseJSON[councilVote](out)
			if err != nil || !valid[v.Vote] {
				log.Printf("discarding invalid vote from %s: %v", stmt.ModelID, err)
				return nil
			}
			mu.Lock()
			votes[stmt.ModelID] = v.Vote
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, fmt.Errorf("no valid council votes collected")
	}
	return votes, nil
}

func tallyVotes(roundCount int, votes map[string]string) schema.ConsensusMetrics {
	counts := make(map[string]int)
	for _, candidate := range votes {
		counts[candidate]++
	}

	candidates := make([]string, 0, len(counts))
	for c := range counts {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)

	best := 0
	for _, c := range candidates {
		if counts[c] > best {
			best = counts[c]
		}
	}

	return schema.ConsensusMetrics{
		Rounds:         roundCount,
		Unanimity:      len(counts) == 1,
		AgreementRatio: float64(best) / float64(len(votes)),
	}
}
