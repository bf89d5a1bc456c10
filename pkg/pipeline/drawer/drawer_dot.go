package drawer

import (
	"fmt"
	"html"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/clinic-pipeline/pkg/pipeline/measure"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const (
	maxRGB    = 240
	darkText  = "#1f2937"
	lightText = "#f9fafb"
)

// DOTDrawer renders the board as a Graphviz DOT document.
type DOTDrawer struct {
	graph    graph.Graph[string, string]
	totals   map[string]model.StageTotal
	fileName string
	out      io.Writer
}

// NewDOTDrawer creates a drawer writing to fileName.
func NewDOTDrawer(fileName string) *DOTDrawer {
	d := &DOTDrawer{fileName: fileName}
	d.Reset()

	return d
}

// NewWriterDrawer creates a drawer writing to out.
func NewWriterDrawer(out io.Writer) *DOTDrawer {
	d := &DOTDrawer{out: out}
	d.Reset()

	return d
}

func (d *DOTDrawer) Reset() {
	d.graph = graph.New(graph.StringHash, graph.Directed())
	d.totals = make(map[string]model.StageTotal)
}

// AddStage adds a filled node using the stage colour.
func (d *DOTDrawer) AddStage(stage model.Stage) error {
	err := d.graph.AddVertex(stage.Name,
		graph.VertexAttribute("shape", "box"),
		graph.VertexAttribute("style", "filled,rounded"),
		graph.VertexAttribute("fillcolor", stage.Color),
		graph.VertexAttribute("fontcolor", textColor(stage.Color)),
	)
	if err != nil {
		return errors.Wrapf(err, "unable to add stage %q", stage.Name)
	}

	return nil
}

func (d *DOTDrawer) AddLink(fromStage, toStage string) error {
	err := d.graph.AddEdge(fromStage, toStage, graph.EdgeAttribute("color", "gray"))
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", fromStage, toStage)
	}

	return nil
}

// SetTotals replaces the totals. Totals of unknown stages are kept but never drawn.
func (d *DOTDrawer) SetTotals(totals []model.StageTotal) error {
	d.totals = make(map[string]model.StageTotal, len(totals))
	for _, total := range totals {
		d.totals[total.Stage] = total
	}

	return nil
}

// AddMeasure adds or updates one edge per transition. Edges go from blue to red as the share
// of rolled back moves grows.
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	for transition, metric := range msr.AllMetrics() {
		fromStage, toStage, ok := strings.Cut(transition, "->")
		if !ok || fromStage == toStage {
			continue
		}

		if !d.hasStage(fromStage) || !d.hasStage(toStage) {
			continue
		}

		ratio := metric.RollbackRatio()
		edgeColor, err := colors.RGB(uint8(maxRGB*ratio), 0, uint8(maxRGB-maxRGB*ratio)) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		label := fmt.Sprintf("%d moves, %d rolled back", metric.Applied(), metric.RolledBack())
		if avg := metric.AVGDuration(); avg > 0 {
			label += ", avg " + avg.String()
		}

		attributes := []func(*graph.EdgeProperties){
			graph.EdgeAttribute("label", label),
			graph.EdgeAttribute("fontcolor", "blue"),
			graph.EdgeAttribute("color", edgeColor.ToHEX().String()),
			graph.EdgeAttribute("style", "bold"),
		}

		err = d.graph.AddEdge(fromStage, toStage, attributes...)
		if errors.Is(err, graph.ErrEdgeAlreadyExists) {
			err = d.graph.UpdateEdge(fromStage, toStage, attributes...)
		}
		if err != nil {
			return errors.Wrapf(err, "unable to add transition %s", transition)
		}
	}

	return nil
}

// Draw writes the DOT document to the configured output.
func (d *DOTDrawer) Draw() error {
	for stage, total := range d.totals {
		_, properties, err := d.graph.VertexWithProperties(stage)
		if err != nil {
			continue
		}
		properties.Attributes["xlabel"] = fmt.Sprintf("%d | %s", total.Count, model.FormatMoney(total.Sum))
	}

	if d.out != nil {
		return dot(d.graph, d.out)
	}

	file, err := os.Create(d.fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.fileName)
	}
	defer file.Close()

	err = dot(d.graph, file)
	if err != nil {
		return errors.Wrapf(err, "unable to create dot file %s", d.fileName)
	}

	return errors.Wrapf(file.Close(), "unable to close file %s", d.fileName)
}

func (d *DOTDrawer) hasStage(name string) bool {
	_, err := d.graph.Vertex(name)

	return err == nil
}

func textColor(hex string) string {
	c, err := colors.ParseHEX(hex)
	if err != nil || c.IsLight() {
		return darkText
	}

	return lightText
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           string
	Target           string
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot(g graph.Graph[string, string], wrt io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(g, options...)
	if err != nil {
		return errors.Wrap(err, "failed to generate DOT description")
	}

	return renderDOT(wrt, desc)
}

// GraphAttribute is a functional option for the DOT description.
func GraphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

// generateDOT lists stages and edges sorted by name so the output is stable.
func generateDOT(gra graph.Graph[string, string], options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   map[string]string{"rankdir": "LR"},
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	if gra.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	vertices := make([]string, 0, len(adjacencyMap))
	for vertex := range adjacencyMap {
		vertices = append(vertices, vertex)
	}
	slices.Sort(vertices)

	for _, vertex := range vertices {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		htmlAttributes := make(map[string]string)
		sourceAttributes := make(map[string]string, len(sourceProperties.Attributes))
		for k, v := range sourceProperties.Attributes {
			if k == "xlabel" {
				htmlAttributes["label"] = fmt.Sprintf(`<%s <BR /> <FONT POINT-SIZE="12">%s</FONT>>`,
					html.EscapeString(vertex), html.EscapeString(v))

				continue
			}
			sourceAttributes[k] = v
		}

		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: sourceAttributes,
			HTMLAttributes:   htmlAttributes,
		})

		targets := make([]string, 0, len(adjacencyMap[vertex]))
		for target := range adjacencyMap[vertex] {
			targets = append(targets, target)
		}
		slices.Sort(targets)

		for _, target := range targets {
			edge := adjacencyMap[vertex][target]
			desc.Statements = append(desc.Statements, statement{
				Source:         vertex,
				Target:         target,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "failed to parse template")
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)
