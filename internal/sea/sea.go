// Package sea implements the size expression algebra: symbolic, non-negative
// integer expressions over named parameters, built from addition and
// multiplication, that message schemas use to express array lengths that are
// not known until a handshake binds the parameters.
package sea

import (
	"fmt"
	"sort"
	"strings"
)

// kind tags the variant an Expr node holds.
type kind int

const (
	kindConst kind = iota
	kindVar
	kindAdd
	kindMul
)

// Expr is a size expression: a literal, a named parameter, or a sum/product
// of two expressions. Zero value is not meaningful; use Const/Var/Add/Mul.
type Expr struct {
	kind kind
	n    uint64
	name string
	l, r *Expr
}

// Const builds a literal-valued expression.
func Const(n uint64) Expr {
	return Expr{kind: kindConst, n: n}
}

// Var builds a named parameter, bound later by an environment passed to Eval.
func Var(name string) Expr {
	return Expr{kind: kindVar, name: name}
}

// Add builds a+b, normalizing 0+x and x+0 to x.
func Add(a, b Expr) Expr {
	if a.isZero() {
		return b
	}
	if b.isZero() {
		return a
	}
	return Expr{kind: kindAdd, l: &a, r: &b}
}

// Mul builds a*b, normalizing 0*x=0 and 1*x=x (and symmetrically for x*1, x*0).
func Mul(a, b Expr) Expr {
	if a.isZero() || b.isZero() {
		return Const(0)
	}
	if a.isOne() {
		return b
	}
	if b.isOne() {
		return a
	}
	return Expr{kind: kindMul, l: &a, r: &b}
}

func (e Expr) isZero() bool { return e.kind == kindConst && e.n == 0 }
func (e Expr) isOne() bool  { return e.kind == kindConst && e.n == 1 }

// ErrUnboundParameter is returned by Eval when a variable has no binding in
// the supplied environment.
type ErrUnboundParameter struct {
	Name string
}

func (e *ErrUnboundParameter) Error() string {
	return fmt.Sprintf("sea: unbound parameter %q", e.Name)
}

// Eval evaluates the expression under env, the mapping of parameter name to
// its bound non-negative integer value.
func (e Expr) Eval(env map[string]uint64) (uint64, error) {
	switch e.kind {
	case kindConst:
		return e.n, nil
	case kindVar:
		v, ok := env[e.name]
		if !ok {
			return 0, &ErrUnboundParameter{Name: e.name}
		}
		return v, nil
	case kindAdd:
		l, err := e.l.Eval(env)
		if err != nil {
			return 0, err
		}
		r, err := e.r.Eval(env)
		if err != nil {
			return 0, err
		}
		return l + r, nil
	case kindMul:
		l, err := e.l.Eval(env)
		if err != nil {
			return 0, err
		}
		r, err := e.r.Eval(env)
		if err != nil {
			return 0, err
		}
		return l * r, nil
	default:
		panic("sea: unreachable expression kind")
	}
}

// Literal reports whether e is a single constant node, and if so returns
// its value. Compound expressions are not folded: Add(Const(2), Const(3))
// reports false even though it has no free variables.
func (e Expr) Literal() (uint64, bool) {
	if e.kind == kindConst {
		return e.n, true
	}
	return 0, false
}

// String renders a C-like expression, parenthesizing multiplication operands
// that are themselves sums.
func (e Expr) String() string {
	s, _ := e.cexpr()
	return s
}

// cexpr returns the rendered string and whether it is a sum at the top level
// (so a caller multiplying it needs to parenthesize).
func (e Expr) cexpr() (string, bool) {
	switch e.kind {
	case kindConst:
		return fmt.Sprintf("%d", e.n), false
	case kindVar:
		return e.name, false
	case kindAdd:
		l, _ := e.l.cexpr()
		r, _ := e.r.cexpr()
		return l + "+" + r, true
	case kindMul:
		l, lp := e.l.cexpr()
		r, rp := e.r.cexpr()
		if lp {
			l = "(" + l + ")"
		}
		if rp {
			r = "(" + r + ")"
		}
		return l + "*" + r, false
	default:
		panic("sea: unreachable expression kind")
	}
}

// Monomial is a canonical product of variable powers, e.g. NUM_AXIS^1.
type Monomial struct {
	vars   []varPower
	coeff  uint64
}

type varPower struct {
	name  string
	power int
}

// key returns a canonical string identifying the variable part of the
// monomial (not the coefficient), used to merge like terms.
func (m Monomial) key() string {
	if len(m.vars) == 0 {
		return ""
	}
	parts := make([]string, len(m.vars))
	for i, vp := range m.vars {
		parts[i] = fmt.Sprintf("%s^%d", vp.name, vp.power)
	}
	return strings.Join(parts, "*")
}

// Expanded is a sum of monomials, keyed by their canonical variable part.
type Expanded map[string]Monomial

// Expand distributes multiplication over addition and collects like
// variables into sorted monomials, one level above the raw tree form.
func (e Expr) Expand() Expanded {
	switch e.kind {
	case kindConst:
		return Expanded{"": {coeff: e.n}}
	case kindVar:
		m := Monomial{vars: []varPower{{name: e.name, power: 1}}}
		return Expanded{m.key(): {vars: m.vars, coeff: 1}}
	case kindAdd:
		l := e.l.Expand()
		r := e.r.Expand()
		out := make(Expanded, len(l)+len(r))
		for k, v := range l {
			out[k] = v
		}
		for k, v := range r {
			if existing, ok := out[k]; ok {
				existing.coeff += v.coeff
				out[k] = existing
			} else {
				out[k] = v
			}
		}
		return out
	case kindMul:
		l := e.l.Expand()
		r := e.r.Expand()
		out := make(Expanded)
		for _, lm := range l {
			for _, rm := range r {
				merged := mergeVars(lm.vars, rm.vars)
				key := Monomial{vars: merged}.key()
				coeff := lm.coeff * rm.coeff
				if existing, ok := out[key]; ok {
					existing.coeff += coeff
					out[key] = existing
				} else {
					out[key] = Monomial{vars: merged, coeff: coeff}
				}
			}
		}
		return out
	default:
		panic("sea: unreachable expression kind")
	}
}

// mergeVars adds variable powers from two monomials and returns them sorted
// by variable name, so the resulting key is canonical.
func mergeVars(a, b []varPower) []varPower {
	orders := make(map[string]int, len(a)+len(b))
	for _, vp := range a {
		orders[vp.name] += vp.power
	}
	for _, vp := range b {
		orders[vp.name] += vp.power
	}
	out := make([]varPower, 0, len(orders))
	for name, power := range orders {
		out = append(out, varPower{name: name, power: power})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Ordering is the result of comparing two expanded expressions term-by-term.
type Ordering int

const (
	Incomparable Ordering = iota
	Equal
	Greater
	Less
)

// Compare orders two expanded expressions. It only succeeds (returns
// Greater/Less/Equal) when one expression dominates the other on every term
// they share and has no smaller terms the other lacks; otherwise
// Incomparable. Used only by an eventual firmware header generator, not by
// the codec or protocol core.
func Compare(s, p Expanded) Ordering {
	pBigger, sBigger := false, false
	common := make(map[string]bool, len(s))
	for k := range s {
		if _, ok := p[k]; ok {
			common[k] = true
		}
	}
	for k := range common {
		if s[k].coeff < p[k].coeff {
			pBigger = true
		}
		if p[k].coeff < s[k].coeff {
			sBigger = true
		}
	}
	if pBigger && sBigger {
		return Incomparable
	}
	sSubsetP := isSubset(s, p)
	pSubsetS := isSubset(p, s)
	if !pBigger && !sBigger {
		if sSubsetP && pSubsetS {
			return Equal
		}
		if sSubsetP {
			return Less
		}
		if pSubsetS {
			return Greater
		}
		return Incomparable
	}
	if pBigger && sSubsetP {
		return Less
	}
	if sBigger && pSubsetS {
		return Greater
	}
	return Incomparable
}

func isSubset(a, b Expanded) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
