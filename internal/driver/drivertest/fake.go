// Package drivertest provides an in-memory driver.Driver for page object
// tests. Elements live in a registry keyed by locator and are looked up again
// on every resolution, so tests can swap them to simulate a re-render.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/errs"
)

const (
	defaultTimeout = 250 * time.Millisecond
	pollInterval   = 2 * time.Millisecond
)

// Fake is an in-memory browser session.
type Fake struct {
	mu          sync.Mutex
	url         string
	registry    map[string][]*Element
	resolutions map[string]int
	calls       []string
	keys        []string

	// Timeout is the wait budget, standing in for the real driver's.
	Timeout time.Duration
	// ExecResult is returned from Execute.
	ExecResult any
	// OnNavigate runs after every Navigate, e.g. to populate the registry.
	OnNavigate func(url string)
	// OnKeys runs after every SendKeys, e.g. to simulate a form submit.
	OnKeys func(keys []string)
}

// New returns an empty session at about:blank.
func New() *Fake {
	return &Fake{
		url:         "about:blank",
		registry:    make(map[string][]*Element),
		resolutions: make(map[string]int),
		Timeout:     defaultTimeout,
	}
}

// Element is a fake DOM element. New elements are displayed and clickable.
type Element struct {
	fake     *Fake
	name     string
	children map[string][]*Element

	displayed bool
	clickable bool
	selected  bool
	value     string
	text      string
	href      string
	clickErr  error
}

// NewElement creates an element. name identifies it in the call log.
func (f *Fake) NewElement(name string) *Element {
	return &Element{
		fake:      f,
		name:      name,
		children:  make(map[string][]*Element),
		displayed: true,
		clickable: true,
	}
}

// Add registers els under loc, replacing anything registered before.
func (f *Fake) Add(loc driver.Locator, els ...*Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[loc.String()] = els
}

// Remove unregisters loc.
func (f *Fake) Remove(loc driver.Locator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registry, loc.String())
}

// Calls returns the ordered interaction log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Keys returns every key sent with SendKeys.
func (f *Fake) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// Resolutions reports how many times loc was looked up.
func (f *Fake) Resolutions(loc driver.Locator) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolutions[loc.String()]
}

// URL returns the current address.
func (f *Fake) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *Fake) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.url = url
	f.record("navigate:%s", url)
	hook := f.OnNavigate
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (f *Fake) Find(loc driver.Locator) driver.Ref {
	return func(ctx context.Context) (driver.Element, error) {
		return f.lookupOne(f.registry, loc)
	}
}

func (f *Fake) FindAll(loc driver.Locator) driver.Refs {
	return func(ctx context.Context) ([]driver.Element, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.resolutions[loc.String()]++
		els := f.registry[loc.String()]
		out := make([]driver.Element, 0, len(els))
		for _, el := range els {
			out = append(out, el)
		}
		return out, nil
	}
}

func (f *Fake) lookupOne(registry map[string][]*Element, loc driver.Locator) (driver.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolutions[loc.String()]++
	els := registry[loc.String()]
	if len(els) == 0 {
		return nil, errs.New(errs.NotFound, "element not found: "+loc.String())
	}
	return els[0], nil
}

func (f *Fake) SendKeys(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	for _, k := range keys {
		f.record("keys:%q", k)
	}
	f.keys = append(f.keys, keys...)
	hook := f.OnKeys
	f.mu.Unlock()

	if hook != nil {
		hook(keys)
	}
	return nil
}

// SetURL moves the session to url without logging a navigation.
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

func (f *Fake) Pause(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.record("pause:%s", d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) Execute(ctx context.Context, js string, args ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("execute")
	return f.ExecResult, nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	return f.URL(), nil
}

func (f *Fake) WaitURLChange(ctx context.Context, from string) error {
	return f.poll(ctx, "url did not change", func() bool { return f.url != from })
}

// poll checks cond under the lock until it holds or the wait budget runs out.
func (f *Fake) poll(ctx context.Context, msg string, cond func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		f.mu.Lock()
		ok := cond()
		f.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Timeout, msg, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Name returns the element's log name.
func (e *Element) Name() string { return e.name }

// AddChild registers els as descendants of e under loc.
func (e *Element) AddChild(loc driver.Locator, els ...*Element) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.children[loc.String()] = els
	return e
}

// SetDisplayed changes visibility; safe to call while a wait is pending.
func (e *Element) SetDisplayed(v bool) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.displayed = v
	return e
}

// SetClickable changes clickability; safe to call while a wait is pending.
func (e *Element) SetClickable(v bool) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.clickable = v
	return e
}

func (e *Element) SetSelected(v bool) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.selected = v
	return e
}

func (e *Element) SetText(text string) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.text = text
	return e
}

// SetHref makes a click navigate to href.
func (e *Element) SetHref(href string) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.href = href
	return e
}

// FailClicks makes every click return err.
func (e *Element) FailClicks(err error) *Element {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.clickErr = err
	return e
}

// CurrentValue returns the value without logging a call.
func (e *Element) CurrentValue() string {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	return e.value
}

func (e *Element) Click(ctx context.Context) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()

	e.fake.record("click:%s", e.name)
	if e.clickErr != nil {
		return errs.Wrap(errs.Interaction, "failed to click element", e.clickErr)
	}
	if !e.displayed || !e.clickable {
		return errs.New(errs.Interaction, e.name+" is not interactable")
	}
	if e.href != "" {
		e.fake.url = e.href
	}
	return nil
}

func (e *Element) ClickViaScript(ctx context.Context) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()

	e.fake.record("script-click:%s", e.name)
	if e.href != "" {
		e.fake.url = e.href
	}
	return nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("value:%s", e.name)
	return e.value, nil
}

func (e *Element) SetValue(ctx context.Context, text string) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("set-value:%s:%s", e.name, text)
	e.value += text
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("clear:%s", e.name)
	e.value = ""
	return nil
}

func (e *Element) SetValueViaScript(ctx context.Context, text string) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("script-set-value:%s:%s", e.name, text)
	e.value = text
	e.fake.record("click:body")
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("text:%s", e.name)
	return e.text, nil
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("displayed:%s", e.name)
	return e.displayed, nil
}

func (e *Element) Selected(ctx context.Context) (bool, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("selected:%s", e.name)
	return e.selected, nil
}

func (e *Element) Clickable(ctx context.Context) (bool, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.record("clickable:%s", e.name)
	return e.displayed && e.clickable, nil
}

func (e *Element) WaitDisplayed(ctx context.Context, reverse bool) error {
	e.fake.mu.Lock()
	e.fake.record("wait-displayed:%s:%t", e.name, reverse)
	e.fake.mu.Unlock()

	return e.fake.poll(ctx, e.name+" display state never changed", func() bool {
		return e.displayed == !reverse
	})
}

func (e *Element) WaitClickable(ctx context.Context, reverse bool) error {
	e.fake.mu.Lock()
	e.fake.record("wait-clickable:%s:%t", e.name, reverse)
	e.fake.mu.Unlock()

	return e.fake.poll(ctx, e.name+" clickable state never changed", func() bool {
		return (e.displayed && e.clickable) == !reverse
	})
}

func (e *Element) Find(loc driver.Locator) driver.Ref {
	return func(ctx context.Context) (driver.Element, error) {
		return e.fake.lookupOne(e.children, loc)
	}
}

var (
	_ driver.Driver  = (*Fake)(nil)
	_ driver.Element = (*Element)(nil)
)
