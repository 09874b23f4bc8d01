package runner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
)

// Tolerances match numpy.allclose defaults.
const (
	defaultRTol = 1e-5
	defaultATol = 1e-8
)

// numericPrefix marks an expected value as an array-construction expression
// that gets tolerance-based comparison instead of literal equality.
const numericPrefix = "np."

// Array is a dense n-dimensional numeric array, the execution namespace's
// stand-in for the scientific stack's array type. A nil Shape is a scalar.
type Array struct {
	Shape []int
	Data  []float64
}

func (a *Array) String() string {
	if len(a.Shape) == 0 {
		return formatFloat(a.Data[0])
	}
	var b strings.Builder
	a.format(&b, 0, 0, 1)
	return b.String()
}

// format renders the array text form, e.g. "[[2.]\n [3.]]": rows of the
// innermost dimension are space-separated, outer dimensions break lines and
// indent to stay aligned under the opening bracket.
func (a *Array) format(b *strings.Builder, dim, offset, indent int) {
	if dim == len(a.Shape)-1 {
		b.WriteByte('[')
		for i := 0; i < a.Shape[dim]; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatFloat(a.Data[offset+i]))
		}
		b.WriteByte(']')
		return
	}
	stride := 1
	for _, s := range a.Shape[dim+1:] {
		stride *= s
	}
	b.WriteByte('[')
	for i := 0; i < a.Shape[dim]; i++ {
		if i > 0 {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat(" ", indent))
		}
		a.format(b, dim+1, offset+i*stride, indent+1)
	}
	b.WriteByte(']')
}

// formatFloat prints integral values with a trailing dot ("2."), matching
// the text form scientific array libraries use for float arrays.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e16 && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 0, 64) + "."
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// allclose reports element-wise approximate equality. Shape is compared by
// flattened length only: actual values arrive as printed text where row
// breaks flatten away, so a column vector and its flat form compare equal.
func allclose(a, b *Array, rtol, atol float64) bool {
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if !scalar.EqualWithinAbsOrRel(a.Data[i], b.Data[i], atol, rtol) {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	}
	return 0, false
}

// fromNested builds an Array from a scalar or nested slices, rejecting
// ragged input.
func fromNested(v interface{}) (*Array, error) {
	if arr, ok := v.(*Array); ok {
		return arr, nil
	}
	if f, ok := toFloat(v); ok {
		return &Array{Data: []float64{f}}, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not a numeric value: %T", v)
	}
	if len(items) == 0 {
		return &Array{Shape: []int{0}}, nil
	}
	subs := make([]*Array, len(items))
	for i, it := range items {
		sub, err := fromNested(it)
		if err != nil {
			return nil, err
		}
		if i > 0 && !equalShape(sub.Shape, subs[0].Shape) {
			return nil, errors.New("ragged nested array")
		}
		subs[i] = sub
	}
	shape := append([]int{len(items)}, subs[0].Shape...)
	data := make([]float64, 0, len(items)*len(subs[0].Data))
	for _, sub := range subs {
		data = append(data, sub.Data...)
	}
	return &Array{Shape: shape, Data: data}, nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseArrayText reconstructs an Array from printed output such as
// "[[2.]\n [3.]]" or "[1, 2, 3]" or a bare "5". Whitespace, newlines and
// commas all separate elements.
func parseArrayText(s string) (*Array, error) {
	p := &textParser{src: strings.TrimSpace(s)}
	if len(p.src) == 0 {
		return nil, errors.New("empty input")
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing text at offset %d", p.pos)
	}
	return fromNested(v)
}

type textParser struct {
	src string
	pos int
}

func (p *textParser) skipSeparators() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', ',':
			p.pos++
		default:
			return
		}
	}
}

func (p *textParser) parseValue() (interface{}, error) {
	p.skipSeparators()
	if p.pos >= len(p.src) {
		return nil, errors.New("unexpected end of input")
	}
	if p.src[p.pos] == '[' {
		return p.parseList()
	}
	return p.parseNumber()
}

func (p *textParser) parseList() (interface{}, error) {
	p.pos++ // consume '['
	items := []interface{}{}
	for {
		p.skipSeparators()
		if p.pos >= len(p.src) {
			return nil, errors.New("unterminated bracket")
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
}

func (p *textParser) parseNumber() (interface{}, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.ContainsRune("+-0123456789.eE", rune(p.src[p.pos])) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, fmt.Errorf("unexpected character %q at offset %d", p.src[start], start)
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q: %w", tok, err)
	}
	return f, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
