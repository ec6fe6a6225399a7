// Package driver defines the browser capability the page objects are written
// against, plus the go-rod implementation of it.
package driver

import (
	"context"
	"time"
)

// Driver is a single browser session: one page, driven sequentially.
// A Driver must not be shared between concurrently running tests.
type Driver interface {
	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error
	// Find returns a lazy reference to the first element matching loc.
	Find(loc Locator) Ref
	// FindAll returns a lazy reference to every element matching loc.
	FindAll(loc Locator) Refs
	// SendKeys dispatches keys to whatever currently has input focus.
	SendKeys(ctx context.Context, keys ...string) error
	// Pause sleeps for d unless ctx ends first.
	Pause(ctx context.Context, d time.Duration) error
	// Execute evaluates a JavaScript function expression in the page.
	Execute(ctx context.Context, js string, args ...any) (any, error)
	// CurrentURL returns the address of the loaded document.
	CurrentURL(ctx context.Context) (string, error)
	// WaitURLChange blocks until the document address differs from from.
	WaitURLChange(ctx context.Context, from string) error
}

// Element is a resolved handle to a DOM element.
type Element interface {
	Click(ctx context.Context) error
	// ClickViaScript dispatches a click from page script, bypassing hit testing.
	ClickViaScript(ctx context.Context) error
	Value(ctx context.Context) (string, error)
	// SetValue types text at the end of the current value.
	SetValue(ctx context.Context, text string) error
	// Clear empties the current value.
	Clear(ctx context.Context) error
	// SetValueViaScript assigns the value property directly and clicks the
	// document body, which moves focus away from the element.
	SetValueViaScript(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Selected(ctx context.Context) (bool, error)
	Clickable(ctx context.Context) (bool, error)
	// WaitDisplayed blocks until Displayed == !reverse.
	WaitDisplayed(ctx context.Context, reverse bool) error
	// WaitClickable blocks until Clickable == !reverse.
	WaitClickable(ctx context.Context, reverse bool) error
	// Find returns a lazy reference scoped to this element's descendants.
	Find(loc Locator) Ref
}

// Ref is an element reference that is resolved again on every call, so a
// re-rendered page never hands out a stale handle.
type Ref func(ctx context.Context) (Element, error)

// Refs is the collection form of Ref.
type Refs func(ctx context.Context) ([]Element, error)

// Resolved wraps an already resolved element.
func Resolved(el Element) Ref {
	return func(context.Context) (Element, error) { return el, nil }
}

// Special keys, using the WebDriver private-use code points.
const (
	KeyBackspace = "\uE003"
	KeyTab       = "\uE004"
	KeyEnter     = "\uE007"
	KeyEscape    = "\uE00C"
)
