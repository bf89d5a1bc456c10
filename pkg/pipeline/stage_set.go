package pipeline

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// palette is used for stages without a valid colour.
var palette = []string{
	"#e0f2fe", // sky
	"#fef3c7", // amber
	"#d1fae5", // emerald
	"#ffe4e6", // rose
	"#ede9fe", // violet
	"#fce7f3", // pink
	"#e0e7ff", // indigo
}

const (
	darkText  = "#1f2937"
	lightText = "#f9fafb"
)

// StageSet is an immutable, ordered set of stages. Consecutive stages are linked in a directed
// graph so neighbours can be looked up from either side.
type StageSet struct {
	stages []model.Stage
	index  map[string]int
	graph  graph.Graph[string, string]
}

// NewStageSet sorts stages by order then name and validates them.
func NewStageSet(stages []model.Stage) (*StageSet, error) {
	sorted := make([]model.Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}

		return sorted[i].Name < sorted[j].Name
	})

	set := &StageSet{
		stages: sorted,
		index:  make(map[string]int, len(sorted)),
		graph:  graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}

	for i := range sorted {
		name := sorted[i].Name
		if strings.TrimSpace(name) == "" {
			return nil, ErrEmptyStageName
		}
		if _, ok := set.index[name]; ok {
			return nil, errors.Wrapf(ErrDuplicateStage, "stage %q", name)
		}

		sorted[i].Color = stageColor(name, sorted[i].Color)
		set.index[name] = i

		err := set.graph.AddVertex(name, graph.VertexAttribute("color", sorted[i].Color))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add stage %q", name)
		}

		if i > 0 {
			err = set.graph.AddEdge(sorted[i-1].Name, name)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to link stage %q to %q", sorted[i-1].Name, name)
			}
		}
	}

	return set, nil
}

// Len returns the number of stages. A nil set is empty.
func (s *StageSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.stages)
}

// Valid reports whether name is a configured stage.
func (s *StageSet) Valid(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]

	return ok
}

// Index returns the display rank of the stage, or -1.
func (s *StageSet) Index(name string) int {
	if s == nil {
		return -1
	}
	i, ok := s.index[name]
	if !ok {
		return -1
	}

	return i
}

// Names returns the stage names in display order.
func (s *StageSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.Name
	}

	return names
}

// Stages returns a copy of the sorted stages.
func (s *StageSet) Stages() []model.Stage {
	if s == nil {
		return nil
	}
	out := make([]model.Stage, len(s.stages))
	copy(out, s.stages)

	return out
}

// Next returns the stage displayed right after name.
func (s *StageSet) Next(name string) (string, bool) {
	if !s.Valid(name) {
		return "", false
	}
	adjacency, err := s.graph.AdjacencyMap()
	if err != nil {
		return "", false
	}
	for next := range adjacency[name] {
		return next, true
	}

	return "", false
}

// Prev returns the stage displayed right before name.
func (s *StageSet) Prev(name string) (string, bool) {
	if !s.Valid(name) {
		return "", false
	}
	predecessors, err := s.graph.PredecessorMap()
	if err != nil {
		return "", false
	}
	for prev := range predecessors[name] {
		return prev, true
	}

	return "", false
}

// Color returns the hex colour of the stage.
func (s *StageSet) Color(name string) string {
	_, properties, err := s.vertex(name)
	if err != nil {
		return stageColor(name, "")
	}

	return properties.Attributes["color"]
}

// TextColor returns a readable foreground colour for text drawn on the stage colour.
func (s *StageSet) TextColor(name string) string {
	c, err := colors.ParseHEX(s.Color(name))
	if err != nil || c.IsLight() {
		return darkText
	}

	return lightText
}

func (s *StageSet) vertex(name string) (string, graph.VertexProperties, error) {
	if s == nil {
		return "", graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return s.graph.VertexWithProperties(name)
}

func stageColor(name, raw string) string {
	if raw != "" {
		c, err := colors.Parse(raw)
		if err == nil {
			return c.ToHEX().String()
		}
	}

	return palette[nameHash(name)%int64(len(palette))]
}

// nameHash is a stable 32-bit hash over the UTF-16 code units of s, so a stage keeps its colour
// across sessions and clients.
func nameHash(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	n := int64(h)
	if n < 0 {
		n = -n
	}

	return n
}
