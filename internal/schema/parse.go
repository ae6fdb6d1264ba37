package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Issue is a single validation failure, located by a dotted field path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ParseResult is the outcome of validating a candidate result document.
// Exactly one of Result/Issues is populated: Issues is non-empty on failure.
type ParseResult struct {
	Success bool
	Result  *EnsembleResult
	Issues  []Issue
}

// Err folds the issue list into a single error, nil on success.
func (p *ParseResult) Err() error {
	if p.Success {
		return nil
	}
	parts := make([]string, len(p.Issues))
	for i, iss := range p.Issues {
		parts[i] = fmt.Sprintf("%s: %s", iss.Path, iss.Message)
	}
	return fmt.Errorf("invalid ensemble result: %s", strings.Join(parts, "; "))
}

// Parse validates raw JSON against the ensemble result contract. It never
// panics and never returns an error: failures are reported as issues.
// Unrecognized fields are preserved, not stripped.
func Parse(data []byte) *ParseResult {
	d := &decoder{}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		d.addf("$", "expected a JSON object")
		return d.finish(nil)
	}

	res := &EnsembleResult{}
	res.Metadata = d.decodeMetadata(top)
	res.Synthesis = d.requireString(top, "synthesis", "")
	res.Responses = d.decodeResponses(top)

	consumed := []string{"type", "metadata", "synthesis", "responses"}

	typ := d.requireString(top, "type", "")
	switch ResultType(typ) {
	case TypeStandard:
		res.Type = TypeStandard
		res.Standard = d.decodeStandard(top)
		consumed = append(consumed, "sourceHighlights")
	case TypeElo:
		res.Type = TypeElo
		res.Elo = d.decodeElo(top)
		consumed = append(consumed, "comparisons", "rankings", "topN", "bracket")
	case TypeMajority:
		res.Type = TypeMajority
		res.Majority = d.decodeMajority(top)
		consumed = append(consumed, "alignmentScores", "majorityModelId", "agreementBreakdown")
	case TypeCouncil:
		res.Type = TypeCouncil
		res.Council = d.decodeCouncil(top)
		consumed = append(consumed, "rounds", "finalVotes", "consensusMetrics")
	default:
		if typ != "" {
			d.addf("type", "unknown result type %q", typ)
		}
	}

	res.Extra = extras(top, consumed...)
	return d.finish(res)
}

// ParseValue validates an already-decoded value (for example the result of
// unmarshalling into map[string]any) by round-tripping it through JSON.
func ParseValue(v any) *ParseResult {
	d := &decoder{}
	if v == nil {
		d.addf("$", "expected a JSON object")
		return d.finish(nil)
	}
	data, err := json.Marshal(v)
	if err != nil {
		d.addf("$", "value is not representable as JSON")
		return d.finish(nil)
	}
	return Parse(data)
}

type decoder struct {
	issues []Issue
}

func (d *decoder) addf(path, format string, args ...any) {
	d.issues = append(d.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (d *decoder) finish(res *EnsembleResult) *ParseResult {
	if len(d.issues) > 0 {
		return &ParseResult{Issues: d.issues}
	}
	return &ParseResult{Success: true, Result: res}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// extras returns every key of obj not named in known, nil when none remain.
func extras(obj map[string]json.RawMessage, known ...string) map[string]json.RawMessage {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	var out map[string]json.RawMessage
	for k, v := range obj {
		if skip[k] {
			continue
		}
		if out == nil {
			out = make(map[string]json.RawMessage)
		}
		out[k] = v
	}
	return out
}

// isNull detects a literal null token. Unmarshalling null into a scalar or
// slice target is a silent no-op, so every typed helper must reject it
// explicitly: a required field set to null is as absent as a missing key.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (d *decoder) object(raw json.RawMessage, path string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		d.addf(path, "expected an object")
		return nil, false
	}
	return obj, true
}

func (d *decoder) array(raw json.RawMessage, path string) ([]json.RawMessage, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || isNull(raw) {
		d.addf(path, "expected an array")
		return nil, false
	}
	return arr, true
}

func (d *decoder) str(raw json.RawMessage, path string) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || isNull(raw) {
		d.addf(path, "expected a string")
		return "", false
	}
	return s, true
}

func (d *decoder) num(raw json.RawMessage, path string) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || isNull(raw) {
		d.addf(path, "expected a number")
		return 0, false
	}
	return f, true
}

func (d *decoder) integer(raw json.RawMessage, path string) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || isNull(raw) {
		d.addf(path, "expected an integer")
		return 0, false
	}
	return n, true
}

func (d *decoder) boolean(raw json.RawMessage, path string) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil || isNull(raw) {
		d.addf(path, "expected a boolean")
		return false, false
	}
	return b, true
}

func (d *decoder) requireString(obj map[string]json.RawMessage, key, base string) string {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return ""
	}
	s, _ := d.str(raw, path)
	return s
}

func (d *decoder) requireStringSlice(obj map[string]json.RawMessage, key, base string) []string {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || isNull(raw) {
		d.addf(path, "expected an array of strings")
		return nil
	}
	return out
}

func (d *decoder) requireInt(obj map[string]json.RawMessage, key, base string) int {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return 0
	}
	n, _ := d.integer(raw, path)
	return n
}

func (d *decoder) requireNum(obj map[string]json.RawMessage, key, base string) float64 {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return 0
	}
	f, _ := d.num(raw, path)
	return f
}

func (d *decoder) requireBool(obj map[string]json.RawMessage, key, base string) bool {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return false
	}
	b, _ := d.boolean(raw, path)
	return b
}

func (d *decoder) requireObject(obj map[string]json.RawMessage, key, base string) (map[string]json.RawMessage, string, bool) {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return nil, path, false
	}
	inner, ok := d.object(raw, path)
	return inner, path, ok
}

func (d *decoder) requireArray(obj map[string]json.RawMessage, key, base string) ([]json.RawMessage, string, bool) {
	path := joinPath(base, key)
	raw, ok := obj[key]
	if !ok {
		d.addf(path, "required field is missing")
		return nil, path, false
	}
	arr, ok := d.array(raw, path)
	return arr, path, ok
}

func (d *decoder) decodeMetadata(top map[string]json.RawMessage) Metadata {
	var md Metadata
	obj, _, ok := d.requireObject(top, "metadata", "")
	if !ok {
		return md
	}

	md.Timestamp = d.requireString(obj, "timestamp", "metadata")
	md.Prompt = d.requireString(obj, "prompt", "metadata")
	md.Models = d.requireStringSlice(obj, "models", "metadata")
	md.SummarizerModel = d.requireString(obj, "summarizerModel", "metadata")

	if raw, ok := obj["schemaVersion"]; ok {
		md.SchemaVersion, _ = d.str(raw, "metadata.schemaVersion")
	} else {
		md.SchemaVersion = DefaultSchemaVersion
	}

	md.Extra = extras(obj, "timestamp", "prompt", "models", "summarizerModel", "schemaVersion")
	return md
}

func (d *decoder) decodeResponses(top map[string]json.RawMessage) []ModelResponse {
	arr, base, ok := d.requireArray(top, "responses", "")
	if !ok {
		return nil
	}

	out := make([]ModelResponse, 0, len(arr))
	for i, raw := range arr {
		path := indexPath(base, i)
		obj, ok := d.object(raw, path)
		if !ok {
			continue
		}

		var r ModelResponse
		r.ModelID = d.requireString(obj, "modelId", path)
		r.Provider = d.requireString(obj, "provider", path)
		r.Model = d.requireString(obj, "model", path)
		r.DisplayName = d.requireString(obj, "displayName", path)
		r.Content = d.requireString(obj, "content", path)
		r.ResponseTimeMs = d.requireNum(obj, "responseTimeMs", path)
		if raw, ok := obj["tokenCount"]; ok {
			if n, ok := d.integer(raw, joinPath(path, "tokenCount")); ok {
				r.TokenCount = &n
			}
		}
		r.Extra = extras(obj, "modelId", "provider", "model", "displayName", "content", "responseTimeMs", "tokenCount")
		out = append(out, r)
	}
	return out
}

func (d *decoder) decodeStandard(top map[string]json.RawMessage) *StandardFields {
	f := &StandardFields{}
	raw, ok := top["sourceHighlights"]
	if !ok {
		return f
	}
	arr, ok := d.array(raw, "sourceHighlights")
	if !ok {
		return f
	}
	// Non-nil even when empty: an explicit [] must round-trip as [].
	f.SourceHighlights = make([]SourceHighlight, 0, len(arr))
	for i, item := range arr {
		path := indexPath("sourceHighlights", i)
		obj, ok := d.object(item, path)
		if !ok {
			continue
		}
		var h SourceHighlight
		h.ModelID = d.requireString(obj, "modelId", path)
		h.Excerpt = d.requireString(obj, "excerpt", path)
		h.Extra = extras(obj, "modelId", "excerpt")
		f.SourceHighlights = append(f.SourceHighlights, h)
	}
	return f
}

func (d *decoder) decodeElo(top map[string]json.RawMessage) *EloFields {
	f := &EloFields{}

	if arr, base, ok := d.requireArray(top, "comparisons", ""); ok {
		f.Comparisons = make([]Comparison, 0, len(arr))
		for i, item := range arr {
			path := indexPath(base, i)
			obj, ok := d.object(item, path)
			if !ok {
				continue
			}
			var c Comparison
			c.ModelA = d.requireString(obj, "modelA", path)
			c.ModelB = d.requireString(obj, "modelB", path)
			c.Winner = d.requireString(obj, "winner", path)
			if raw, ok := obj["reasoning"]; ok {
				c.Reasoning, _ = d.str(raw, joinPath(path, "reasoning"))
			}
			c.Extra = extras(obj, "modelA", "modelB", "winner", "reasoning")
			f.Comparisons = append(f.Comparisons, c)
		}
	}

	if arr, base, ok := d.requireArray(top, "rankings", ""); ok {
		f.Rankings = make([]Ranking, 0, len(arr))
		for i, item := range arr {
			path := indexPath(base, i)
			obj, ok := d.object(item, path)
			if !ok {
				continue
			}
			var r Ranking
			r.ModelID = d.requireString(obj, "modelId", path)
			r.Rating = d.requireNum(obj, "rating", path)
			r.Rank = d.requireInt(obj, "rank", path)
			r.Extra = extras(obj, "modelId", "rating", "rank")
			f.Rankings = append(f.Rankings, r)
		}
	}

	f.TopN = d.requireInt(top, "topN", "")
	if raw, ok := top["bracket"]; ok {
		f.Bracket = raw
	}
	return f
}

func (d *decoder) decodeMajority(top map[string]json.RawMessage) *MajorityFields {
	f := &MajorityFields{}

	if obj, base, ok := d.requireObject(top, "alignmentScores", ""); ok {
		f.AlignmentScores = make(map[string]float64, len(obj))
		for k, raw := range obj {
			if v, ok := d.num(raw, joinPath(base, k)); ok {
				f.AlignmentScores[k] = v
			}
		}
	}

	f.MajorityModelID = d.requireString(top, "majorityModelId", "")

	if obj, base, ok := d.requireObject(top, "agreementBreakdown", ""); ok {
		f.AgreementBreakdown.Agree = d.requireStringSlice(obj, "agree", base)
		f.AgreementBreakdown.Partial = d.requireStringSlice(obj, "partial", base)
		f.AgreementBreakdown.Disagree = d.requireStringSlice(obj, "disagree", base)
		f.AgreementBreakdown.Extra = extras(obj, "agree", "partial", "disagree")
	}
	return f
}

func (d *decoder) decodeCouncil(top map[string]json.RawMessage) *CouncilFields {
	f := &CouncilFields{}

	if arr, base, ok := d.requireArray(top, "rounds", ""); ok {
		f.Rounds = make([]DeliberationRound, 0, len(arr))
		for i, item := range arr {
			path := indexPath(base, i)
			obj, ok := d.object(item, path)
			if !ok {
				continue
			}
			var round DeliberationRound
			round.Round = d.requireInt(obj, "round", path)
			if stmts, sbase, ok := d.requireArray(obj, "statements", path); ok {
				round.Statements = make([]CouncilStatement, 0, len(stmts))
				for j, sraw := range stmts {
					spath := indexPath(sbase, j)
					sobj, ok := d.object(sraw, spath)
					if !ok {
						continue
					}
					var st CouncilStatement
					st.ModelID = d.requireString(sobj, "modelId", spath)
					st.Content = d.requireString(sobj, "content", spath)
					st.Extra = extras(sobj, "modelId", "content")
					round.Statements = append(round.Statements, st)
				}
			}
			round.Extra = extras(obj, "round", "statements")
			f.Rounds = append(f.Rounds, round)
		}
	}

	if obj, base, ok := d.requireObject(top, "finalVotes", ""); ok {
		f.FinalVotes = make(map[string]string, len(obj))
		for k, raw := range obj {
			if v, ok := d.str(raw, joinPath(base, k)); ok {
				f.FinalVotes[k] = v
			}
		}
	}

	if obj, base, ok := d.requireObject(top, "consensusMetrics", ""); ok {
		f.ConsensusMetrics.Rounds = d.requireInt(obj, "rounds", base)
		f.ConsensusMetrics.Unanimity = d.requireBool(obj, "unanimity", base)
		f.ConsensusMetrics.AgreementRatio = d.requireNum(obj, "agreementRatio", base)
		f.ConsensusMetrics.Extra = extras(obj, "rounds", "unanimity", "agreementRatio")
	}
	return f
}
