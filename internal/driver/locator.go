package driver

import (
	"fmt"
	"strings"
)

// Kind selects how a Locator query is interpreted.
type Kind int

const (
	// CSS is a CSS selector such as `[name="q"]` or `a h3`.
	CSS Kind = iota
	// XPath is an XPath expression. Relative expressions (starting with ".")
	// are evaluated against the parent when used with Element.Find.
	XPath
	// ExactText matches elements whose text equals Query, optionally
	// restricted to elements matching the CSS selector in Tag.
	ExactText
)

// Locator describes how to find one or more elements.
type Locator struct {
	Kind  Kind
	Query string
	Tag   string
}

// ByCSS returns a CSS locator.
func ByCSS(selector string) Locator { return Locator{Kind: CSS, Query: selector} }

// ByXPath returns an XPath locator.
func ByXPath(expr string) Locator { return Locator{Kind: XPath, Query: expr} }

// ByExactText returns a locator for elements matching tag whose text is text.
// An empty tag matches any element.
func ByExactText(tag, text string) Locator {
	return Locator{Kind: ExactText, Query: text, Tag: tag}
}

func (l Locator) String() string {
	switch l.Kind {
	case CSS:
		return l.Query
	case XPath:
		return "xpath:" + l.Query
	case ExactText:
		tag := l.Tag
		if tag == "" {
			tag = "*"
		}
		return tag + "=" + l.Query
	}
	return fmt.Sprintf("locator(%d):%s", l.Kind, l.Query)
}

// XPathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so text holding both quote kinds is split into a concat() call.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + part + "'")
	}
	b.WriteString(")")
	return b.String()
}
