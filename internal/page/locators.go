package page

import (
	"context"

	"github.com/ahrdadan/pagecheck/internal/driver"
)

// Caller text is quoted with driver.XPathLiteral (and regex-escaped for exact
// text matches), so it can never alter the structure of the query.

func containsTextXPath(prefix, text string) string {
	return prefix + "//*[contains(text(), " + driver.XPathLiteral(text) + ")]"
}

// ByContainingText references the first element in the document whose text
// node contains text.
func (b *Base) ByContainingText(text string) driver.Ref {
	return b.drv.Find(driver.ByXPath(containsTextXPath("", text)))
}

// ByAllContainingText references every element in the document whose text
// node contains text.
func (b *Base) ByAllContainingText(text string) driver.Refs {
	return b.drv.FindAll(driver.ByXPath(containsTextXPath("", text)))
}

// ByContainingTextWithin references the first descendant of container whose
// text node contains text. The container is resolved again on every call.
func (b *Base) ByContainingTextWithin(text string, container driver.Ref) driver.Ref {
	loc := driver.ByXPath(containsTextXPath(".", text))
	return func(ctx context.Context) (driver.Element, error) {
		parent, err := container(ctx)
		if err != nil {
			return nil, err
		}
		return parent.Find(loc)(ctx)
	}
}

// ByExactText references the first element matching elementType whose text
// equals text. An empty elementType matches any element.
func (b *Base) ByExactText(elementType, text string) driver.Ref {
	return b.drv.Find(driver.ByExactText(elementType, text))
}

// ByAllExactText references every element whose text node equals text.
func (b *Base) ByAllExactText(text string) driver.Refs {
	return b.drv.FindAll(driver.ByXPath("//*[text() = " + driver.XPathLiteral(text) + "]"))
}
