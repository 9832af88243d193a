// Package derive compiles repository method names such as "findAllByLineIDOrderByNameDesc" into
// query descriptions.
//
// The grammar is:
//
//	findAll
//	findAllOrderBy<Field>[Asc|Desc]
//	findAllBy<Where>[OrderBy<Field>[Asc|Desc]]
//	findBy<Where>[OrderBy<Field>[Asc|Desc]]
//	count | countBy<Where>
//	existsBy<Where>
//	deleteBy<Where>
//	updateBy<Where>                   arguments: (values, where...)
//	update<Set>[By|Where<Where>]      arguments: (set..., where...)
//
//	Where := Field (("And" | "Or") Field)*
//	Set   := Field ("And"? Field)*
//
// Field references are resolved by a [Resolver]. Multi-word fields are matched greedily, longest
// first, backtracking when the remainder does not parse.
package derive

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

var (
	// ErrInvalidMethod is returned when a method name does not follow the grammar.
	ErrInvalidMethod = errors.New("invalid method name")
	// ErrFieldNotFound is returned when a method name references an unknown field.
	ErrFieldNotFound = errors.New("field not found")
)

// Kind is the statement a method compiles to.
type Kind int

const (
	KindFind Kind = iota + 1
	KindCount
	KindExists
	KindDelete
	// KindUpdate sets the named columns from positional arguments.
	KindUpdate
	// KindUpdateValues sets the columns of a values map passed as the first argument.
	KindUpdateValues
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindCount:
		return "count"
	case KindExists:
		return "exists"
	case KindDelete:
		return "delete"
	case KindUpdate, KindUpdateValues:
		return "update"
	default:
		return "unknown"
	}
}

// Resolver maps a field reference to a column name.
type Resolver interface {
	Resolve(name string) (column string, ok bool)
}

// Method is a compiled method name.
type Method struct {
	Name string
	Kind Kind
	// All is set for the findAll forms.
	All   bool
	Set   []string
	Where []sqlbuild.Cond
	Order *sqlbuild.Order
}

// NumArgs returns the number of positional arguments the method expects.
func (m *Method) NumArgs() int {
	if m.Kind == KindUpdateValues {
		return 1 + len(m.Where)
	}
	return len(m.Set) + len(m.Where)
}

// Parse compiles a method name. The first letter is case-insensitive.
func Parse(name string, r Resolver) (*Method, error) {
	toks := Tokenize(name)
	if len(toks) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidMethod)
	}
	p := &parser{name: name, r: r}
	m := &Method{Name: name}
	verb, rest := strings.ToLower(toks[0]), toks[1:]
	var err error
	switch verb {
	case "find":
		m.Kind = KindFind
		err = p.find(m, rest)
	case "count":
		m.Kind = KindCount
		if len(rest) > 0 && is(rest[0], "All") {
			rest = rest[1:]
		}
		if len(rest) > 0 {
			if !is(rest[0], "By") {
				return nil, p.invalid("expected By after count")
			}
			m.Where, err = p.where(rest[1:])
		}
	case "exists":
		m.Kind = KindExists
		if len(rest) == 0 || !is(rest[0], "By") {
			return nil, p.invalid("expected existsBy")
		}
		m.Where, err = p.where(rest[1:])
	case "delete":
		m.Kind = KindDelete
		if len(rest) == 0 || !is(rest[0], "By") {
			return nil, p.invalid("expected deleteBy")
		}
		m.Where, err = p.where(rest[1:])
	case "update":
		err = p.update(m, rest)
	default:
		return nil, p.invalid("unknown verb " + toks[0])
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type parser struct {
	name string
	r    Resolver
}

func (p *parser) invalid(reason string) error {
	return fmt.Errorf("%q: %s: %w", p.name, reason, ErrInvalidMethod)
}

func (p *parser) find(m *Method, toks []string) error {
	if len(toks) > 0 && is(toks[0], "All") {
		m.All = true
		toks = toks[1:]
	}
	if len(toks) == 0 {
		if !m.All {
			return p.invalid("expected findAll or findBy")
		}
		return nil
	}
	whereToks, orderToks, hasOrder := cutOrderBy(toks)
	if hasOrder {
		order, err := p.order(orderToks)
		if err != nil {
			return err
		}
		m.Order = order
	}
	if len(whereToks) == 0 {
		if !m.All || !hasOrder {
			return p.invalid("expected By")
		}
		return nil
	}
	if !is(whereToks[0], "By") {
		return p.invalid("expected By")
	}
	var err error
	m.Where, err = p.where(whereToks[1:])
	return err
}

// cutOrderBy splits tokens at the last "Order" "By" pair.
func cutOrderBy(toks []string) (before, after []string, found bool) {
	for i := len(toks) - 2; i >= 0; i-- {
		if is(toks[i], "Order") && is(toks[i+1], "By") {
			return toks[:i], toks[i+2:], true
		}
	}
	return toks, nil, false
}

func (p *parser) order(toks []string) (*sqlbuild.Order, error) {
	if len(toks) == 0 {
		return nil, p.invalid("expected a field after OrderBy")
	}
	o := &sqlbuild.Order{}
	if last := toks[len(toks)-1]; len(toks) > 1 && (is(last, "Asc") || is(last, "Desc")) {
		o.Desc = is(last, "Desc")
		toks = toks[:len(toks)-1]
	}
	field := strings.Join(toks, "")
	col, ok := p.r.Resolve(field)
	if !ok {
		return nil, fmt.Errorf("%q: order by %q: %w", p.name, field, ErrFieldNotFound)
	}
	o.Column = col
	return o, nil
}

func (p *parser) where(toks []string) ([]sqlbuild.Cond, error) {
	if len(toks) == 0 {
		return nil, p.invalid("expected a field after By")
	}
	conds, ok := p.fields(toks, false, false)
	if !ok {
		return nil, fmt.Errorf("%q: no fields match %q: %w", p.name, strings.Join(toks, ""), ErrFieldNotFound)
	}
	return conds, nil
}

func (p *parser) update(m *Method, toks []string) error {
	if len(toks) == 0 {
		return p.invalid("expected updateBy or update<Field>")
	}
	if is(toks[0], "By") {
		m.Kind = KindUpdateValues
		var err error
		m.Where, err = p.where(toks[1:])
		return err
	}
	m.Kind = KindUpdate
	for i := 1; i < len(toks); i++ {
		if !is(toks[i], "By") && !is(toks[i], "Where") {
			continue
		}
		set, ok := p.fields(toks[:i], false, true)
		if !ok {
			continue
		}
		if where, ok := p.fields(toks[i+1:], false, false); ok {
			m.Set = columns(set)
			m.Where = where
			return nil
		}
	}
	set, ok := p.fields(toks, false, true)
	if !ok {
		return fmt.Errorf("%q: no fields match %q: %w", p.name, strings.Join(toks, ""), ErrFieldNotFound)
	}
	m.Set = columns(set)
	return nil
}

// fields segments toks into resolvable fields. In set mode fields are joined by an optional
// "And"; otherwise by a mandatory "And" or "Or".
func (p *parser) fields(toks []string, or, set bool) ([]sqlbuild.Cond, bool) {
	for j := len(toks); j > 0; j-- {
		col, ok := p.r.Resolve(strings.Join(toks[:j], ""))
		if !ok {
			continue
		}
		head := []sqlbuild.Cond{{Column: col, Or: or}}
		rest := toks[j:]
		if len(rest) == 0 {
			return head, true
		}
		if len(rest) > 1 && is(rest[0], "And") {
			if tail, ok := p.fields(rest[1:], false, set); ok {
				return append(head, tail...), true
			}
		}
		if !set && len(rest) > 1 && is(rest[0], "Or") {
			if tail, ok := p.fields(rest[1:], true, set); ok {
				return append(head, tail...), true
			}
		}
		if set {
			if tail, ok := p.fields(rest, false, set); ok {
				return append(head, tail...), true
			}
		}
	}
	return nil, false
}

func columns(conds []sqlbuild.Cond) []string {
	cols := make([]string, len(conds))
	for i, c := range conds {
		cols[i] = c.Column
	}
	return cols
}

func is(tok, keyword string) bool {
	return strings.EqualFold(tok, keyword)
}

// Tokenize splits a camel-case name into words. Runs of capitals are kept together as an acronym,
// except for a final capital that starts a new word ("LineIDName" is Line, ID, Name). Digits stay
// with the preceding word and underscores separate words.
func Tokenize(name string) []string {
	runes := []rune(name)
	var (
		toks  []string
		start = -1
	)
	flush := func(end int) {
		if start >= 0 && end > start {
			toks = append(toks, string(runes[start:end]))
		}
		start = -1
	}
	for i, r := range runes {
		if r == '_' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		if unicode.IsUpper(r) {
			switch {
			case unicode.IsLower(prev), unicode.IsDigit(prev):
				flush(i)
				start = i
			case unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush(i)
				start = i
			}
		}
	}
	flush(len(runes))
	return toks
}
