// Package locator translates symbolic locator strategies and wait conditions
// from site scripts into native element queries and wait predicates.
package locator

import (
	"fmt"
	"strings"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// ErrUnsupportedCondition is returned for a wait condition outside the
// supported set. It is a configuration error and is never recovered locally.
var ErrUnsupportedCondition = schemas.ErrUnsupportedCondition

// Resolve translates strategy+value into a native query. Unknown strategies
// are treated as css.
func Resolve(strategy schemas.Strategy, value string) schemas.Query {
	switch strategy.Normalize() {
	case schemas.StrategyXPath:
		return schemas.Query{Lang: schemas.QueryXPath, Expr: value}
	case schemas.StrategyID:
		return schemas.Query{Lang: schemas.QueryCSS, Expr: attrSelector("id", value)}
	case schemas.StrategyName:
		return schemas.Query{Lang: schemas.QueryCSS, Expr: attrSelector("name", value)}
	case schemas.StrategyClass:
		return schemas.Query{Lang: schemas.QueryCSS, Expr: classSelector(value)}
	case schemas.StrategyTag:
		return schemas.Query{Lang: schemas.QueryCSS, Expr: strings.TrimSpace(value)}
	case schemas.StrategyLinkText:
		return schemas.Query{Lang: schemas.QueryXPath, Expr: "//a[normalize-space(.)=" + xpathLiteral(strings.TrimSpace(value)) + "]"}
	default:
		return schemas.Query{Lang: schemas.QueryCSS, Expr: value}
	}
}

// ResolveWait translates a wait condition into a native predicate on the
// element located by strategy+value.
func ResolveWait(condition schemas.WaitCondition, strategy schemas.Strategy, value string) (schemas.WaitPredicate, error) {
	cond := schemas.WaitCondition(strings.ToLower(strings.TrimSpace(string(condition))))

	var state schemas.ElementState
	switch cond {
	case schemas.WaitClickable, schemas.WaitVisible:
		state = schemas.StateVisible
	case schemas.WaitPresent, schemas.WaitAttached:
		state = schemas.StateAttached
	case schemas.WaitInvisible:
		state = schemas.StateHidden
	default:
		return schemas.WaitPredicate{}, fmt.Errorf("%w: %q", ErrUnsupportedCondition, condition)
	}

	return schemas.WaitPredicate{
		Query:     Resolve(strategy, value),
		State:     state,
		Condition: cond,
	}, nil
}

// ParseSubSelector splits a scrape field selector of the form
// "selector|||strategy". Without a separator the strategy is css.
func ParseSubSelector(raw string) (string, schemas.Strategy) {
	sel, by, found := strings.Cut(raw, schemas.SubSelectorSeparator)
	if !found {
		return strings.TrimSpace(raw), schemas.StrategyCSS
	}
	strategy := schemas.Strategy(by).Normalize()
	if strategy == "" {
		strategy = schemas.StrategyCSS
	}
	return strings.TrimSpace(sel), strategy
}

// RelativeXPath rebases an XPath expression onto a context node path so that
// "./td", ".//a" and "td" are evaluated below it. Absolute expressions are
// returned unchanged.
func RelativeXPath(base, expr string) string {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "//"), strings.HasPrefix(expr, "/"):
		return expr
	case strings.HasPrefix(expr, ".//"):
		return base + expr[1:]
	case strings.HasPrefix(expr, "./"):
		return base + expr[1:]
	case expr == ".":
		return base
	default:
		return base + "/" + expr
	}
}

func attrSelector(attr, value string) string {
	return fmt.Sprintf(`[%s="%s"]`, attr, strings.ReplaceAll(strings.TrimSpace(value), `"`, `\"`))
}

func classSelector(value string) string {
	classes := strings.Fields(value)
	if len(classes) == 0 {
		return value
	}
	return "." + strings.Join(classes, ".")
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	if len(quoted) == 1 {
		quoted = append(quoted, `""`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
