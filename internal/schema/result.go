package schema

import "encoding/json"

// ResultType discriminates the four ensemble result shapes.
type ResultType string

const (
	TypeStandard ResultType = "standard"
	TypeElo      ResultType = "elo"
	TypeMajority ResultType = "majority"
	TypeCouncil  ResultType = "council"
)

// DefaultSchemaVersion is applied when a document omits schemaVersion.
const DefaultSchemaVersion = "1.0.0"

// Metadata describes the run that produced a result.
type Metadata struct {
	Timestamp       string   `json:"timestamp"`
	Prompt          string   `json:"prompt"`
	Models          []string `json:"models"`
	SummarizerModel string   `json:"summarizerModel"`
	SchemaVersion   string   `json:"schemaVersion"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ModelResponse is one model's answer within an ensemble run.
// Model IDs use the "provider:model" form, e.g. "openai:gpt-4o".
type ModelResponse struct {
	ModelID        string  `json:"modelId"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	DisplayName    string  `json:"displayName"`
	Content        string  `json:"content"`
	ResponseTimeMs float64 `json:"responseTimeMs"`
	TokenCount     *int    `json:"tokenCount,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// SourceHighlight attributes a span of the synthesis to a model response.
type SourceHighlight struct {
	ModelID string `json:"modelId"`
	Excerpt string `json:"excerpt"`

	Extra map[string]json.RawMessage `json:"-"`
}

// StandardFields carries the fields specific to a standard synthesis result.
type StandardFields struct {
	SourceHighlights []SourceHighlight `json:"sourceHighlights"`
}

// MarshalJSON writes sourceHighlights only when the slice is non-nil, so an
// explicit empty list survives a round trip and an absent one stays absent.
func (f StandardFields) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, 1)
	if f.SourceHighlights != nil {
		data, err := json.Marshal(f.SourceHighlights)
		if err != nil {
			return nil, err
		}
		doc["sourceHighlights"] = data
	}
	return json.Marshal(doc)
}

// Comparison is a single pairwise judgment between two model responses.
type Comparison struct {
	ModelA    string `json:"modelA"`
	ModelB    string `json:"modelB"`
	Winner    string `json:"winner"`
	Reasoning string `json:"reasoning,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Ranking is a model's final Elo standing.
type Ranking struct {
	ModelID string  `json:"modelId"`
	Rating  float64 `json:"rating"`
	Rank    int     `json:"rank"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EloFields carries the fields specific to an Elo tournament result.
// Bracket is preserved verbatim; its shape is owned by the UI.
type EloFields struct {
	Comparisons []Comparison    `json:"comparisons"`
	Rankings    []Ranking       `json:"rankings"`
	TopN        int             `json:"topN"`
	Bracket     json.RawMessage `json:"bracket,omitempty"`
}

// AgreementBreakdown groups models by how closely they track the majority.
type AgreementBreakdown struct {
	Agree    []string `json:"agree"`
	Partial  []string `json:"partial"`
	Disagree []string `json:"disagree"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MajorityFields carries the fields specific to a majority vote result.
type MajorityFields struct {
	AlignmentScores    map[string]float64 `json:"alignmentScores"`
	MajorityModelID    string             `json:"majorityModelId"`
	AgreementBreakdown AgreementBreakdown `json:"agreementBreakdown"`
}

// CouncilStatement is one model's contribution in a deliberation round.
type CouncilStatement struct {
	ModelID string `json:"modelId"`
	Content string `json:"content"`

	Extra map[string]json.RawMessage `json:"-"`
}

// DeliberationRound is one full pass where every model speaks.
type DeliberationRound struct {
	Round      int                `json:"round"`
	Statements []CouncilStatement `json:"statements"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ConsensusMetrics summarizes how the council converged.
type ConsensusMetrics struct {
	Rounds         int     `json:"rounds"`
	Unanimity      bool    `json:"unanimity"`
	AgreementRatio float64 `json:"agreementRatio"`

	Extra map[string]json.RawMessage `json:"-"`
}

// CouncilFields carries the fields specific to a council deliberation result.
type CouncilFields struct {
	Rounds           []DeliberationRound `json:"rounds"`
	FinalVotes       map[string]string   `json:"finalVotes"`
	ConsensusMetrics ConsensusMetrics    `json:"consensusMetrics"`
}

// EnsembleResult is the validated form of an ensemble result document.
// Exactly one of Standard/Elo/Majority/Council is non-nil, matching Type.
// Extra holds unrecognized top-level fields so that documents written by
// newer producers survive a parse/serialize round trip unchanged.
type EnsembleResult struct {
	Type      ResultType      `json:"type"`
	Metadata  Metadata        `json:"metadata"`
	Synthesis string          `json:"synthesis"`
	Responses []ModelResponse `json:"responses"`

	Standard *StandardFields `json:"-"`
	Elo      *EloFields      `json:"-"`
	Majority *MajorityFields `json:"-"`
	Council  *CouncilFields  `json:"-"`

	Extra map[string]json.RawMessage `json:"-"`
}

// marshalWithExtra marshals known, then overlays extra keys that do not
// collide with known fields. known must not carry a MarshalJSON of its own.
func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	type alias Metadata
	return marshalWithExtra(alias(m), m.Extra)
}

func (r ModelResponse) MarshalJSON() ([]byte, error) {
	type alias ModelResponse
	return marshalWithExtra(alias(r), r.Extra)
}

func (h SourceHighlight) MarshalJSON() ([]byte, error) {
	type alias SourceHighlight
	return marshalWithExtra(alias(h), h.Extra)
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	type alias Comparison
	return marshalWithExtra(alias(c), c.Extra)
}

func (r Ranking) MarshalJSON() ([]byte, error) {
	type alias Ranking
	return marshalWithExtra(alias(r), r.Extra)
}

func (b AgreementBreakdown) MarshalJSON() ([]byte, error) {
	type alias AgreementBreakdown
	return marshalWithExtra(alias(b), b.Extra)
}

func (s CouncilStatement) MarshalJSON() ([]byte, error) {
	type alias CouncilStatement
	return marshalWithExtra(alias(s), s.Extra)
}

func (d DeliberationRound) MarshalJSON() ([]byte, error) {
	type alias DeliberationRound
	return marshalWithExtra(alias(d), d.Extra)
}

func (m ConsensusMetrics) MarshalJSON() ([]byte, error) {
	type alias ConsensusMetrics
	return marshalWithExtra(alias(m), m.Extra)
}

// MarshalJSON flattens the variant fields back to the top level of the
// document, alongside the shared fields and any preserved extras.
func (r EnsembleResult) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage)
	for k, v := range r.Extra {
		doc[k] = v
	}

	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		doc[key] = data
		return nil
	}

	if err := put("type", r.Type); err != nil {
		return nil, err
	}
	if err := put("metadata", r.Metadata); err != nil {
		return nil, err
	}
	if err := put("synthesis", r.Synthesis); err != nil {
		return nil, err
	}
	responses := r.Responses
	if responses == nil {
		responses = []ModelResponse{}
	}
	if err := put("responses", responses); err != nil {
		return nil, err
	}

	var variant any
	switch {
	case r.Standard != nil:
		variant = r.Standard
	case r.Elo != nil:
		variant = r.Elo
	case r.Majority != nil:
		variant = r.Majority
	case r.Council != nil:
		variant = r.Council
	}
	if variant != nil {
		data, err := json.Marshal(variant)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			doc[k] = v
		}
	}

	return json.Marshal(doc)
}

// UnmarshalJSON routes through Parse so that a json.Unmarshal on this type
// enforces the same contract as explicit validation.
func (r *EnsembleResult) UnmarshalJSON(data []byte) error {
	res := Parse(data)
	if !res.Success {
		return res.Err()
	}
	*r = *res.Result
	return nil
}
