package postprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

func textNode(id string, score float64, meta map[string]string) node.Node {
	if meta == nil {
		meta = map[string]string{}
	}
	if _, ok := meta[node.MetaNodeType]; !ok {
		meta[node.MetaNodeType] = node.TypeText
	}
	return node.New(id, "content-"+id, meta, score, node.SourceVector)
}

type failingProcessor struct{}

func (failingProcessor) Name() string { return "boom" }
func (failingProcessor) Process(context.Context, string, []node.Node) ([]node.Node, error) {
	return nil, errors.New("kaput")
}

func TestRun_StopsOnFirstFailure(t *testing.T) {
	procs := []Processor{NewTopK(5), failingProcessor{}, NewTopK(1)}
	_, err := Run(context.Background(), "q", []node.Node{textNode("a", 1, nil)}, procs)
	if err == nil {
		t.Fatal("expected chain failure to propagate")
	}
}

func TestScoreCutoff(t *testing.T) {
	nodes := []node.Node{
		textNode("a", 0.9, nil),
		textNode("b", 0.5, nil),
		textNode("c", 0.2, nil),
	}

	out, err := NewScoreCutoff(0.5).Process(context.Background(), "q", nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.5 is an inclusive lower bound.
	if len(out) != 2 || out[0].ID() != "a" || out[1].ID() != "b" {
		t.Fatalf("unexpected result: %v", ids(out))
	}

	out, err = NewScoreCutoff(0).Process(context.Background(), "q", nodes)
	if err != nil || len(out) != 3 {
		t.Fatalf("zero cutoff must pass everything, got %v (%v)", ids(out), err)
	}
}

func TestTopK(t *testing.T) {
	nodes := []node.Node{textNode("a", 3, nil), textNode("b", 2, nil), textNode("c", 1, nil)}

	out, err := NewTopK(2).Process(context.Background(), "q", nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(out))
	}

	out, err = NewTopK(2).Process(context.Background(), "q", nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty input must stay empty, got %v (%v)", out, err)
	}
}

// --- RelationRebuild ---

func TestRelationRebuild_MarksNeighborsInResults(t *testing.T) {
	a := textNode("a", 1, map[string]string{node.MetaNextID: "b"})
	b := textNode("b", 0.5, map[string]string{node.MetaPrevID: "a", node.MetaNextID: "z"})

	out, err := NewRelationRebuild().Process(context.Background(), "q", []node.Node{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Meta(metaNextInResults) != "true" {
		t.Error("a.next=b is in results, expected annotation")
	}
	if out[1].Meta(metaPrevInResults) != "true" {
		t.Error("b.prev=a is in results, expected annotation")
	}
	if out[1].Meta(metaNextInResults) != "" {
		t.Error("b.next=z is absent, expected no annotation")
	}
	// Originals must not be mutated.
	if a.Meta(metaNextInResults) != "" {
		t.Error("input node was mutated")
	}
}

func TestRelationRebuild_SkipsQANodes(t *testing.T) {
	qa := node.New("q1", "pair", map[string]string{node.MetaNodeType: node.TypeQA, node.MetaNextID: "q1"}, 1, node.SourceVector)
	out, err := NewRelationRebuild().Process(context.Background(), "q", []node.Node{qa})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Meta(metaNextInResults) != "" {
		t.Error("QA nodes carry no chain, expected no annotation")
	}
}

// --- Completion ---

type mapFetcher map[string]node.Node

func (m mapFetcher) Fetch(_ context.Context, fetchIDs []string) (map[string]node.Node, error) {
	out := make(map[string]node.Node)
	for _, id := range fetchIDs {
		if n, ok := m[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func TestCompletion_ExpandsShortChunks(t *testing.T) {
	store := mapFetcher{
		"next1": node.New("next1", " tail", map[string]string{node.MetaNodeType: node.TypeText}, 0, node.SourceVector),
		"prev1": node.New("prev1", "head ", map[string]string{node.MetaNodeType: node.TypeText}, 0, node.SourceVector),
	}
	n := node.New("a", "body", map[string]string{
		node.MetaNodeType: node.TypeText,
		node.MetaNextID:   "next1",
		node.MetaPrevID:   "prev1",
	}, 0.9, node.SourceVector)

	out, err := NewCompletion(store, 100).Process(context.Background(), "q", []node.Node{n})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out[0].Content(); got != "head body tail" {
		t.Errorf("unexpected completed content: %q", got)
	}
	if out[0].Score() != 0.9 {
		t.Error("completion must not change scores")
	}
}

func TestCompletion_RespectsLengthBound(t *testing.T) {
	store := mapFetcher{
		"next1": node.New("next1", "0123456789", map[string]string{node.MetaNodeType: node.TypeText}, 0, node.SourceVector),
	}
	n := node.New("a", "abcde", map[string]string{
		node.MetaNodeType: node.TypeText,
		node.MetaNextID:   "next1",
	}, 1, node.SourceVector)

	out, err := NewCompletion(store, 8).Process(context.Background(), "q", []node.Node{n})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out[0].Content(); got != "abcde012" {
		t.Errorf("expected bounded content, got %q", got)
	}
}

func TestCompletion_SkipsNeighborAlreadyInResults(t *testing.T) {
	store := mapFetcher{
		"b": node.New("b", "BBBB", map[string]string{node.MetaNodeType: node.TypeText, node.MetaNextID: "c"}, 0, node.SourceVector),
		"c": node.New("c", "CCCC", map[string]string{node.MetaNodeType: node.TypeText}, 0, node.SourceVector),
	}
	a := node.New("a", "A", map[string]string{
		node.MetaNodeType: node.TypeText,
		node.MetaNextID:   "b",
	}, 1, node.SourceVector)
	b := store["b"].WithScore(0.5)

	rebuilt, err := NewRelationRebuild().Process(context.Background(), "q", []node.Node{a, b})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	out, err := NewCompletion(store, 100).Process(context.Background(), "q", rebuilt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// b is already a result: its text must not be duplicated into a,
	// but the walk continues past it to c.
	if got := out[0].Content(); got != "ACCCC" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestCompletion_EmptyInput(t *testing.T) {
	out, err := NewCompletion(mapFetcher{}, 10).Process(context.Background(), "q", nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty input must stay empty, got %v (%v)", out, err)
	}
}

// --- Rerank ---

type fixedScorer struct {
	scores []float64
	err    error
}

func (s fixedScorer) Scores(context.Context, string, []string) ([]float64, error) {
	return s.scores, s.err
}

func TestRerank_ReplacesScoresAndSorts(t *testing.T) {
	nodes := []node.Node{textNode("a", 0.9, nil), textNode("b", 0.8, nil), textNode("c", 0.7, nil)}
	p := NewRerank(fixedScorer{scores: []float64{0.1, 0.99, 0.5}}, 0)

	out, err := p.Process(context.Background(), "q", nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(out); got[0] != "b" || got[1] != "c" || got[2] != "a" {
		t.Errorf("unexpected order: %v", got)
	}
	if out[0].Score() != 0.99 {
		t.Errorf("expected replaced score, got %f", out[0].Score())
	}
}

func TestRerank_TopN(t *testing.T) {
	nodes := []node.Node{textNode("a", 1, nil), textNode("b", 1, nil)}
	out, err := NewRerank(fixedScorer{scores: []float64{0.2, 0.8}}, 1).Process(context.Background(), "q", nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ID() != "b" {
		t.Errorf("unexpected result: %v", ids(out))
	}
}

func TestRerank_ScoreCountMismatch(t *testing.T) {
	nodes := []node.Node{textNode("a", 1, nil), textNode("b", 1, nil)}
	if _, err := NewRerank(fixedScorer{scores: []float64{0.5}}, 0).Process(context.Background(), "q", nodes); err == nil {
		t.Fatal("expected error on score count mismatch")
	}
}

func TestRerank_FailurePropagates(t *testing.T) {
	nodes := []node.Node{textNode("a", 1, nil)}
	wantErr := errors.New("service down")
	_, err := NewRerank(fixedScorer{err: wantErr}, 0).Process(context.Background(), "q", nodes)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped scorer error, got %v", err)
	}
}

// --- ImageDescription ---

type fakeDescriber struct {
	text     string
	relevant bool
	err      error
	calls    int
}

func (d *fakeDescriber) Describe(context.Context, string, string) (string, bool, error) {
	d.calls++
	return d.text, d.relevant, d.err
}

func TestImageDescription_ReplacesImageContent(t *testing.T) {
	img := node.New("i1", "s3://img.png", map[string]string{node.MetaNodeType: node.TypeImage}, 0.4, node.SourceVector)
	txt := textNode("a", 0.9, nil)
	d := &fakeDescriber{text: "a chart of quarterly revenue", relevant: true}

	out, err := NewImageDescription(d).Process(context.Background(), "what was revenue?", []node.Node{txt, img})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.calls != 1 {
		t.Errorf("expected 1 describe call, got %d", d.calls)
	}
	if out[1].Content() != "a chart of quarterly revenue" {
		t.Errorf("image content not replaced: %q", out[1].Content())
	}
	if out[0].Content() != txt.Content() {
		t.Error("text node must pass through untouched")
	}
}

func TestImageDescription_DropsIrrelevantImages(t *testing.T) {
	img := node.New("i1", "s3://img.png", map[string]string{node.MetaNodeType: node.TypeImage}, 0.4, node.SourceVector)
	out, err := NewImageDescription(&fakeDescriber{relevant: false}).Process(context.Background(), "q", []node.Node{img})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("irrelevant image must be dropped, got %v", ids(out))
	}
}

func ids(nodes []node.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}
