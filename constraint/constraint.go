// Package constraint implements placement predicates over a single node
// attribute, parameterized by the history of values already bound to
// that attribute by peer servers.
//
// A constraints spec is a comma-separated list of "attr=expr" pairs;
// several constraints may bind the same attribute, in which case they
// are evaluated in the order parsed and every one of them must match.
package constraint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies a Constraint variant.
type Kind int

const (
	KindUnique Kind = iota
	KindCluster
	KindLike
	KindUnlike
	KindGroupBy
)

// Constraint is a placement predicate over one attribute value. Exactly
// one of the type-specific fields is meaningful, selected by Kind.
type Constraint struct {
	Kind Kind

	// Cluster: Value is the pinned value; HasValue reports whether an
	// explicit value was given ("cluster" vs "cluster:foo").
	Value    string
	HasValue bool

	// Like / Unlike.
	Pattern *regexp.Regexp
	raw     string // original regex source, for String()

	// GroupBy.
	N int
}

// Matches reports whether value is an acceptable placement given
// history, the ordered list of the same attribute's values already
// bound by other servers. History never includes the candidate itself.
//
// The cluster:<value> variant is a documented special case: when an
// explicit value is supplied it pins by literal equality only and
// never consults history, even though absent-value Cluster does. This
// mirrors the framework's original behavior and is preserved here on
// purpose (see spec Open Questions).
func (c Constraint) Matches(value string, history []string) bool {
	switch c.Kind {
	case KindUnique:
		for _, h := range history {
			if h == value {
				return false
			}
		}
		return true

	case KindCluster:
		if c.HasValue {
			return value == c.Value
		}
		if len(history) == 0 {
			return true
		}
		return value == history[0]

	case KindLike:
		return c.Pattern.MatchString(value)

	case KindUnlike:
		return !c.Pattern.MatchString(value)

	case KindGroupBy:
		// Balance across existing groups only: a value already bound to
		// some group is accepted iff its group is tied for least-used.
		// Ties are allowed, matching "GroupBy:1 degenerates to accept if
		// value has the smallest count so far".
		n := c.N
		if n <= 0 {
			n = 1
		}
		counts := groupCounts(history)
		if len(counts) < n {
			return true
		}
		min := minCount(counts)
		return counts[value] == min
	}
	return false
}

// String renders the constraint back to its canonical expression form
// (without the leading "attr=").
func (c Constraint) String() string {
	switch c.Kind {
	case KindUnique:
		return "unique"
	case KindCluster:
		if c.HasValue {
			return "cluster:" + c.Value
		}
		return "cluster"
	case KindLike:
		return "like:" + c.raw
	case KindUnlike:
		return "unlike:" + c.raw
	case KindGroupBy:
		if c.N == 1 {
			return "groupBy"
		}
		return fmt.Sprintf("groupBy:%d", c.N)
	}
	return ""
}

func groupCounts(history []string) map[string]int {
	counts := make(map[string]int, len(history))
	for _, h := range history {
		counts[h]++
	}
	return counts
}

func minCount(counts map[string]int) int {
	min := -1
	for _, c := range counts {
		if min < 0 || c < min {
			min = c
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// ParseError names the offending expression.
type ParseError struct {
	Expr string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("constraint: invalid expression %q", e.Expr)
}

// Parse parses a constraints spec ("attr=expr,attr=expr,...") into a
// mapping of attribute name to the ordered list of constraints bound
// to it. An empty spec yields an empty, non-nil map.
func Parse(spec string) (map[string][]Constraint, error) {
	result := make(map[string][]Constraint)
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return result, nil
	}

	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			return nil, &ParseError{Expr: pair}
		}
		attr := strings.TrimSpace(pair[:eq])
		expr := strings.TrimSpace(pair[eq+1:])
		if attr == "" || expr == "" {
			return nil, &ParseError{Expr: pair}
		}

		c, err := parseExpr(expr)
		if err != nil {
			return nil, err
		}
		result[attr] = append(result[attr], c)
	}

	return result, nil
}

func parseExpr(expr string) (Constraint, error) {
	name, arg, hasArg := expr, "", false
	if idx := strings.IndexByte(expr, ':'); idx >= 0 {
		name, arg, hasArg = expr[:idx], expr[idx+1:], true
	}

	switch strings.ToLower(name) {
	case "unique":
		return Constraint{Kind: KindUnique}, nil

	case "cluster":
		return Constraint{Kind: KindCluster, Value: arg, HasValue: hasArg}, nil

	case "like":
		if !hasArg || arg == "" {
			return Constraint{}, &ParseError{Expr: expr}
		}
		re, err := regexp.Compile("^(?:" + arg + ")$")
		if err != nil {
			return Constraint{}, &ParseError{Expr: expr}
		}
		return Constraint{Kind: KindLike, Pattern: re, raw: arg}, nil

	case "unlike":
		if !hasArg || arg == "" {
			return Constraint{}, &ParseError{Expr: expr}
		}
		re, err := regexp.Compile("^(?:" + arg + ")$")
		if err != nil {
			return Constraint{}, &ParseError{Expr: expr}
		}
		return Constraint{Kind: KindUnlike, Pattern: re, raw: arg}, nil

	case "groupby":
		n := 1
		if hasArg && arg != "" {
			parsed, err := strconv.Atoi(arg)
			if err != nil || parsed < 1 {
				return Constraint{}, &ParseError{Expr: expr}
			}
			n = parsed
		}
		return Constraint{Kind: KindGroupBy, N: n}, nil
	}

	return Constraint{}, &ParseError{Expr: expr}
}

// Default returns the default constraint mapping used when a server is
// created without an explicit spec: hostname=unique.
func Default() map[string][]Constraint {
	return map[string][]Constraint{
		"hostname": {{Kind: KindUnique}},
	}
}
