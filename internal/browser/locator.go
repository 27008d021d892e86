// internal/browser/locator.go
package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Locator addresses one element on the page: the Index-th match of Selector,
// resolved inside Scope when set, then optionally lifted to its nearest
// ancestor with tag Closest. Locators are values; building one never touches the page.
type Locator struct {
	Selector string
	Index    int
	Scope    *Locator
	Closest  string
}

// Query returns a locator for the first match of a CSS selector.
func Query(selector string) Locator {
	return Locator{Selector: selector}
}

// Nth returns a copy addressing the i-th match (0-based).
func (l Locator) Nth(i int) Locator {
	l.Index = i
	return l
}

// Find returns a locator for selector resolved within l.
func (l Locator) Find(selector string) Locator {
	scope := l
	return Locator{Selector: selector, Scope: &scope}
}

// Ancestor returns a locator for the nearest ancestor of l with the given tag name.
func (l Locator) Ancestor(tag string) Locator {
	l.Closest = strings.ToLower(tag)
	return l
}

// IsSimple reports whether the locator is a bare selector that native
// driver queries can handle without page-side resolution.
func (l Locator) IsSimple() bool {
	return l.Scope == nil && l.Index == 0 && l.Closest == ""
}

// String renders a stable, human-readable key, e.g. `div.row[2] >> svg.car`.
func (l Locator) String() string {
	var b strings.Builder
	if l.Scope != nil {
		b.WriteString(l.Scope.String())
		b.WriteString(" >> ")
	}
	b.WriteString(l.Selector)
	if l.Index != 0 {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(l.Index))
		b.WriteString("]")
	}
	if l.Closest != "" {
		b.WriteString(" ^ ")
		b.WriteString(l.Closest)
	}
	return b.String()
}

// scopeJS is a JS expression evaluating to the node l is resolved in.
func (l Locator) scopeJS() string {
	if l.Scope == nil {
		return "document"
	}
	return l.Scope.elementJS()
}

// elementJS is a JS expression evaluating to the element or null.
func (l Locator) elementJS() string {
	expr := fmt.Sprintf(`((s) => s ? (s.querySelectorAll(%s)[%d] || null) : null)(%s)`,
		strconv.Quote(l.Selector), l.Index, l.scopeJS())
	if l.Closest != "" {
		expr = fmt.Sprintf(`((e) => (e && e.parentElement) ? e.parentElement.closest(%s) : null)(%s)`,
			strconv.Quote(l.Closest), expr)
	}
	return expr
}

// countJS is a JS expression evaluating to the number of matches of l
// (ignoring Index), or 0/1 when Closest is set.
func (l Locator) countJS() string {
	if l.Closest != "" {
		return fmt.Sprintf(`(%s) ? 1 : 0`, l.elementJS())
	}
	return fmt.Sprintf(`((s) => s ? s.querySelectorAll(%s).length : 0)(%s)`,
		strconv.Quote(l.Selector), l.scopeJS())
}

// playwrightChain is the equivalent list of chained selector segments for
// engines that understand nth= and xpath ancestors.
func (l Locator) playwrightChain() []string {
	var chain []string
	if l.Scope != nil {
		chain = append(chain, l.Scope.playwrightChain()...)
	}
	chain = append(chain, l.Selector)
	chain = append(chain, "nth="+strconv.Itoa(l.Index))
	if l.Closest != "" {
		chain = append(chain, "xpath=ancestor::"+l.Closest+"[1]")
	}
	return chain
}
