package recipe

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/marblecutter-go/tilecutter/raster"
)

// applyExpr evaluates the comma-separated arithmetic expressions in raw over
// a pixel collection's bands (referenced as b1..bN, 1-indexed to match the
// directive's documented band naming), replacing pc's bands with one output
// band per expression. NaN results are replaced with 0; a pixel's mask is
// the logical OR of every band referenced by its expression (i.e. valid only
// when every contributing band is valid), per spec.md §4.4.
//
// No third-party expression-evaluation library appears anywhere in the
// example pack, so this is a small hand-rolled recursive-descent parser
// rather than an adopted dependency.
func applyExpr(pc *raster.PixelCollection, raw string) error {
	exprs := splitTopLevel(raw, ',')
	plane := pc.Height * pc.Width

	newData := make([]float32, len(exprs)*plane)
	newMask := make([]bool, len(exprs)*plane)

	for ei, src := range exprs {
		node, err := parseExpr(strings.TrimSpace(src))
		if err != nil {
			return fmt.Errorf("recipe: expr %q: %w", src, err)
		}
		for i := 0; i < plane; i++ {
			v, masked := node.eval(pc, i)
			if math.IsNaN(v) {
				v = 0
			}
			newData[ei*plane+i] = float32(v)
			newMask[ei*plane+i] = masked
		}
	}

	pc.Data = newData
	pc.Mask = newMask
	pc.Bands = len(exprs)
	return nil
}

func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// exprNode is a node in the parsed arithmetic expression tree.
type exprNode interface {
	eval(pc *raster.PixelCollection, pixel int) (value float64, masked bool)
}

type constNode float64

func (n constNode) eval(*raster.PixelCollection, int) (float64, bool) { return float64(n), false }

type bandNode int // 0-indexed band

func (n bandNode) eval(pc *raster.PixelCollection, pixel int) (float64, bool) {
	band := int(n)
	if band < 0 || band >= pc.Bands {
		return 0, true
	}
	idx := band*pc.Height*pc.Width + pixel
	return float64(pc.Data[idx]), pc.Mask[idx]
}

type binOpNode struct {
	op    byte
	l, r  exprNode
}

func (n binOpNode) eval(pc *raster.PixelCollection, pixel int) (float64, bool) {
	lv, lm := n.l.eval(pc, pixel)
	rv, rm := n.r.eval(pc, pixel)
	masked := lm || rm
	switch n.op {
	case '+':
		return lv + rv, masked
	case '-':
		return lv - rv, masked
	case '*':
		return lv * rv, masked
	case '/':
		if rv == 0 {
			return 0, true
		}
		return lv / rv, masked
	default:
		return 0, true
	}
}

type negNode struct{ inner exprNode }

func (n negNode) eval(pc *raster.PixelCollection, pixel int) (float64, bool) {
	v, m := n.inner.eval(pc, pixel)
	return -v, m
}

// exprParser is a minimal recursive-descent parser for
// `sum := term (('+'|'-') term)*`, `term := unary (('*'|'/') unary)*`,
// `unary := '-' unary | atom`, `atom := number | 'b' digits | '(' sum ')'`.
type exprParser struct {
	s   string
	pos int
}

func parseExpr(s string) (exprNode, error) {
	p := &exprParser{s: s}
	node, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected trailing input %q", p.s[p.pos:])
	}
	return node, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) parseSum() (exprNode, error) {
	node, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) || (p.s[p.pos] != '+' && p.s[p.pos] != '-') {
			return node, nil
		}
		op := p.s[p.pos]
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		node = binOpNode{op: op, l: node, r: rhs}
	}
}

func (p *exprParser) parseTerm() (exprNode, error) {
	node, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) || (p.s[p.pos] != '*' && p.s[p.pos] != '/') {
			return node, nil
		}
		op := p.s[p.pos]
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		node = binOpNode{op: op, l: node, r: rhs}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '-' {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{inner: inner}, nil
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (exprNode, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if p.s[p.pos] == '(' {
		p.pos++
		node, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ')' {
			return nil, fmt.Errorf("missing closing paren")
		}
		p.pos++
		return node, nil
	}
	if p.s[p.pos] == 'b' || p.s[p.pos] == 'B' {
		start := p.pos
		p.pos++
		digitsStart := p.pos
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
		if p.pos == digitsStart {
			return nil, fmt.Errorf("malformed band reference %q", p.s[start:p.pos])
		}
		n, err := strconv.Atoi(p.s[digitsStart:p.pos])
		if err != nil {
			return nil, fmt.Errorf("malformed band reference %q: %w", p.s[start:p.pos], err)
		}
		return bandNode(n - 1), nil
	}
	start := p.pos
	for p.pos < len(p.s) && (p.s[p.pos] == '.' || (p.s[p.pos] >= '0' && p.s[p.pos] <= '9')) {
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("unexpected character %q", string(p.s[p.pos]))
	}
	f, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed number %q: %w", p.s[start:p.pos], err)
	}
	return constNode(f), nil
}
