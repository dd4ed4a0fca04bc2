// Package filtergraph builds ffmpeg filter_complex graphs. Filters and
// labels are typed values; the textual syntax is produced only by String.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Label names a stream between filters.
type Label string

func (l Label) String() string {
	return "[" + string(l) + "]"
}

// InputLabel selects the video stream of the n-th input.
func InputLabel(n int) Label {
	return Label(fmt.Sprintf("%d:v", n))
}

// Param is one filter argument. An empty Key makes it positional.
type Param struct {
	Key   string
	Value string
}

// Filter is a single graph node.
type Filter struct {
	Name   string
	Params []Param
}

// With appends a keyed parameter.
func (f Filter) With(key string, value any) Filter {
	f.Params = append(append([]Param(nil), f.Params...), Param{Key: key, Value: formatValue(value)})
	return f
}

// Arg appends a positional parameter.
func (f Filter) Arg(value any) Filter {
	return f.With("", value)
}

func (f Filter) String() string {
	if len(f.Params) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		if p.Key == "" {
			parts[i] = p.Value
		} else {
			parts[i] = p.Key + "=" + p.Value
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}

// Chain is a linear run of filters between input and output labels.
type Chain struct {
	Inputs  []Label
	Filters []Filter
	Outputs []Label
}

func (c Chain) String() string {
	var b strings.Builder
	for _, l := range c.Inputs {
		b.WriteString(l.String())
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, l := range c.Outputs {
		b.WriteString(l.String())
	}
	return b.String()
}

// Graph accumulates chains and owns label allocation, so two chains can
// never declare the same output by accident.
type Graph struct {
	chains []Chain
	next   int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// Label allocates a fresh label.
func (g *Graph) Label(prefix string) Label {
	l := Label(fmt.Sprintf("%s%d", prefix, g.next))
	g.next++
	return l
}

// Chain appends a chain with a single freshly allocated output.
func (g *Graph) Chain(prefix string, inputs []Label, filters ...Filter) Label {
	return g.ChainN(prefix, 1, inputs, filters...)[0]
}

// ChainN appends a chain whose last filter has n outputs.
func (g *Graph) ChainN(prefix string, n int, inputs []Label, filters ...Filter) []Label {
	outputs := make([]Label, n)
	for i := range outputs {
		outputs[i] = g.Label(prefix)
	}
	g.chains = append(g.chains, Chain{
		Inputs:  append([]Label(nil), inputs...),
		Filters: append([]Filter(nil), filters...),
		Outputs: outputs,
	})
	return outputs
}

// Chains returns a copy of the chains in declaration order.
func (g *Graph) Chains() []Chain {
	return append([]Chain(nil), g.chains...)
}

// String serializes the graph in filter_complex syntax.
func (g *Graph) String() string {
	parts := make([]string, len(g.chains))
	for i, c := range g.chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}
