package chi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/mode"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	answeruc "github.com/lumenkb/ragd/internal/usecase/answer"
	retrievaluc "github.com/lumenkb/ragd/internal/usecase/retrieval"
)

// retrieveRequest is the wire form shared by /retrieve, /answer and
// /answer/stream: the answer endpoints take the same retrieval parameters.
type retrieveRequest struct {
	Query       string          `json:"query"`
	FileIDs     []string        `json:"file_ids"`
	Mode        string          `json:"mode,omitempty"`
	Filters     *filterNodeDTO  `json:"filters,omitempty"`
	TopK        int             `json:"top_k,omitempty"`
	ScoreCutoff float64         `json:"score_cutoff,omitempty"`
	Plugins     []pluginSpecDTO `json:"plugins,omitempty"`

	// Answer-only knobs, ignored by /retrieve.
	ModelParams *modelParamsDTO `json:"model_params,omitempty"`
	ShowQuote   *bool           `json:"show_quote,omitempty"` // default true
}

type modelParamsDTO struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

func (r retrieveRequest) answerOptions() answeruc.Options {
	opts := answeruc.Options{ShowQuote: true}
	if r.ShowQuote != nil {
		opts.ShowQuote = *r.ShowQuote
	}
	if r.ModelParams != nil {
		opts.ModelParams = domain.ModelParams{
			Temperature: r.ModelParams.Temperature,
			MaxTokens:   r.ModelParams.MaxTokens,
		}
	}
	return opts
}

type pluginSpecDTO struct {
	Name    string            `json:"name"`
	Enabled *bool             `json:"enabled,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// filterNodeDTO is either a predicate (key/operator/value) or a nested
// group (condition/filters). A node with a key is a predicate; everything
// else is treated as a group.
type filterNodeDTO struct {
	Key      string          `json:"key,omitempty"`
	Operator string          `json:"operator,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`

	Condition string          `json:"condition,omitempty"`
	Filters   []filterNodeDTO `json:"filters,omitempty"`
}

func (r retrieveRequest) toDomain() (*request.Request, error) {
	var filters filter.Filters
	if r.Filters != nil {
		group, err := r.Filters.toGroup()
		if err != nil {
			return nil, fmt.Errorf("invalid filters: %w", err)
		}
		filters = group
	}

	plugins := make([]request.PluginSpec, 0, len(r.Plugins))
	for _, p := range r.Plugins {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		plugins = append(plugins, request.PluginSpec{
			Name:    p.Name,
			Enabled: enabled,
			Params:  p.Params,
		})
	}

	req, err := request.New(
		r.Query,
		r.FileIDs,
		mode.Mode(r.Mode),
		filters,
		r.TopK,
		r.ScoreCutoff,
		plugins,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// toGroup converts a DTO node into a filter group. A predicate node is
// wrapped in a single-member AND group.
func (d filterNodeDTO) toGroup() (filter.Filters, error) {
	n, err := d.toNode()
	if err != nil {
		return filter.Filters{}, err
	}
	if g, ok := n.(filter.Filters); ok {
		return g, nil
	}
	return filter.NewGroup(filter.CondAnd, n)
}

func (d filterNodeDTO) toNode() (filter.Node, error) {
	if d.Key != "" {
		return d.toPredicate()
	}

	nodes := make([]filter.Node, 0, len(d.Filters))
	for _, child := range d.Filters {
		n, err := child.toNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return filter.NewGroup(filter.Condition(d.Condition), nodes...)
}

func (d filterNodeDTO) toPredicate() (filter.Node, error) {
	op := filter.Operator(d.Operator)
	if len(d.Value) == 0 {
		return nil, fmt.Errorf("filter %q: value is required", d.Key)
	}

	var raw any
	if err := json.Unmarshal(d.Value, &raw); err != nil {
		return nil, fmt.Errorf("filter %q: invalid value: %w", d.Key, err)
	}

	switch v := raw.(type) {
	case string:
		return filter.NewString(d.Key, op, v)
	case float64:
		return filter.NewNumber(d.Key, op, v)
	case bool:
		return filter.NewString(d.Key, op, strconv.FormatBool(v))
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			switch iv := item.(type) {
			case string:
				values = append(values, iv)
			case float64:
				values = append(values, strconv.FormatFloat(iv, 'g', -1, 64))
			default:
				return nil, fmt.Errorf("filter %q: array values must be strings or numbers", d.Key)
			}
		}
		return filter.NewList(d.Key, op, values)
	default:
		return nil, fmt.Errorf("filter %q: unsupported value type", d.Key)
	}
}

type nodeDTO struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type retrieveResponse struct {
	Nodes             []nodeDTO `json:"nodes"`
	PromptConstraints []string  `json:"prompt_constraints,omitempty"`
}

func retrieveResponseFrom(res *retrievaluc.Result) retrieveResponse {
	nodes := make([]nodeDTO, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		nodes = append(nodes, nodeDTOFrom(n))
	}
	return retrieveResponse{Nodes: nodes, PromptConstraints: res.PromptConstraints}
}

func nodeDTOFrom(n node.Node) nodeDTO {
	return nodeDTO{
		ID:       n.ID(),
		Content:  n.Content(),
		Score:    n.Score(),
		Source:   string(n.Source()),
		Metadata: n.Metadata(),
	}
}
