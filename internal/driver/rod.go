package driver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/genutil"
)

// DefaultWaitTimeout bounds every lookup and wait when no timeout is configured.
const DefaultWaitTimeout = 10 * time.Second

var specialKeys = map[string]input.Key{
	KeyBackspace: input.Backspace,
	KeyTab:       input.Tab,
	KeyEnter:     input.Enter,
	KeyEscape:    input.Escape,
}

// RodDriver drives one rod page.
type RodDriver struct {
	page    *rod.Page
	timeout time.Duration
}

// NewRodDriver wraps page. Every lookup and wait is bounded by waitTimeout.
func NewRodDriver(page *rod.Page, waitTimeout time.Duration) *RodDriver {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &RodDriver{page: page, timeout: waitTimeout}
}

// Page returns the underlying rod page.
func (d *RodDriver) Page() *rod.Page {
	return d.page
}

func (d *RodDriver) bind(ctx context.Context) (*rod.Page, func()) {
	p := d.page.Context(ctx).Timeout(d.timeout)
	return p, func() { p.CancelTimeout() }
}

// Navigate loads url and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p, done := d.bind(ctx)
	defer done()

	if err := p.Navigate(url); err != nil {
		return classify(errs.Interaction, "failed to navigate to "+url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return classify(errs.Interaction, "failed to wait for page load", err)
	}
	return nil
}

// Find returns a lazy reference to the first element matching loc.
func (d *RodDriver) Find(loc Locator) Ref {
	return func(ctx context.Context) (Element, error) {
		p, done := d.bind(ctx)
		defer done()

		el, err := findOne(p, loc)
		if err != nil {
			return nil, notFound(loc, err)
		}
		return &rodElement{el: el, timeout: d.timeout}, nil
	}
}

// FindAll returns a lazy reference to every element matching loc. It does
// not wait for matches to appear.
func (d *RodDriver) FindAll(loc Locator) Refs {
	return func(ctx context.Context) ([]Element, error) {
		p, done := d.bind(ctx)
		defer done()

		els, err := findAll(ctx, p, loc)
		if err != nil {
			return nil, notFound(loc, err)
		}
		return wrapAll(els, d.timeout), nil
	}
}

// SendKeys types special keys through the keyboard and inserts everything
// else as text.
func (d *RodDriver) SendKeys(ctx context.Context, keys ...string) error {
	p, done := d.bind(ctx)
	defer done()

	for _, k := range keys {
		if key, ok := specialKeys[k]; ok {
			if err := p.Keyboard.Type(key); err != nil {
				return classify(errs.Interaction, "failed to press key", err)
			}
			continue
		}
		if err := p.InsertText(k); err != nil {
			return classify(errs.Interaction, "failed to insert text", err)
		}
	}
	return nil
}

// Pause sleeps for d.
func (d *RodDriver) Pause(ctx context.Context, dur time.Duration) error {
	return sleep(ctx, dur)
}

// Execute evaluates js, a function expression, with args.
func (d *RodDriver) Execute(ctx context.Context, js string, args ...any) (any, error) {
	p, done := d.bind(ctx)
	defer done()

	res, err := p.Eval(js, args...)
	if err != nil {
		return nil, classify(errs.Interaction, "failed to evaluate script", err)
	}
	return res.Value.Val(), nil
}

// CurrentURL returns the page URL.
func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	p, done := d.bind(ctx)
	defer done()

	info, err := p.Info()
	if err != nil {
		return "", classify(errs.Interaction, "failed to read page info", err)
	}
	return info.URL, nil
}

// WaitURLChange polls until location.href differs from from.
func (d *RodDriver) WaitURLChange(ctx context.Context, from string) error {
	p, done := d.bind(ctx)
	defer done()

	if err := p.Wait(rod.Eval(`(u) => location.href !== u`, from)); err != nil {
		return classify(errs.Timeout, "url did not change from "+from, err)
	}
	return nil
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) bind(ctx context.Context) (*rod.Element, func()) {
	el := e.el.Context(ctx).Timeout(e.timeout)
	return el, func() { el.CancelTimeout() }
}

func (e *rodElement) Click(ctx context.Context) error {
	el, done := e.bind(ctx)
	defer done()
	return classify(errs.Interaction, "failed to click element", el.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) ClickViaScript(ctx context.Context) error {
	el, done := e.bind(ctx)
	defer done()
	_, err := el.Eval(`() => this.click()`)
	return classify(errs.Interaction, "failed to click element via script", err)
}

func (e *rodElement) Value(ctx context.Context) (string, error) {
	el, done := e.bind(ctx)
	defer done()

	res, err := el.Eval(`() => this.value == null ? "" : String(this.value)`)
	if err != nil {
		return "", classify(errs.Interaction, "failed to read value", err)
	}
	return res.Value.Str(), nil
}

func (e *rodElement) SetValue(ctx context.Context, text string) error {
	el, done := e.bind(ctx)
	defer done()
	return classify(errs.Interaction, "failed to input value", el.Input(text))
}

func (e *rodElement) Clear(ctx context.Context) error {
	el, done := e.bind(ctx)
	defer done()

	if err := el.SelectAllText(); err != nil {
		return classify(errs.Interaction, "failed to select value", err)
	}
	return classify(errs.Interaction, "failed to clear value", el.Input(""))
}

func (e *rodElement) SetValueViaScript(ctx context.Context, text string) error {
	el, done := e.bind(ctx)
	defer done()
	_, err := el.Eval(`(v) => { this.value = v; document.body.click() }`, text)
	return classify(errs.Interaction, "failed to set value via script", err)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	el, done := e.bind(ctx)
	defer done()

	text, err := el.Text()
	if err != nil {
		return "", classify(errs.Interaction, "failed to read text", err)
	}
	return text, nil
}

func (e *rodElement) Displayed(ctx context.Context) (bool, error) {
	el, done := e.bind(ctx)
	defer done()

	visible, err := el.Visible()
	if err != nil {
		return false, classify(errs.Interaction, "failed to check visibility", err)
	}
	return visible, nil
}

func (e *rodElement) Selected(ctx context.Context) (bool, error) {
	el, done := e.bind(ctx)
	defer done()

	res, err := el.Eval(`() => !!(this.checked || this.selected)`)
	if err != nil {
		return false, classify(errs.Interaction, "failed to check selection", err)
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) Clickable(ctx context.Context) (bool, error) {
	el, done := e.bind(ctx)
	defer done()

	_, err := el.Interactable()
	if err == nil {
		return true, nil
	}
	if isNotInteractable(err) {
		return false, nil
	}
	return false, classify(errs.Interaction, "failed to check clickability", err)
}

func (e *rodElement) WaitDisplayed(ctx context.Context, reverse bool) error {
	el, done := e.bind(ctx)
	defer done()

	if !reverse {
		return classify(errs.Timeout, "element never became displayed", el.WaitVisible())
	}

	err := el.WaitInvisible()
	if isDetached(err) {
		return nil
	}
	return classify(errs.Timeout, "element never disappeared", err)
}

// notClickableJS mirrors the hit test behind Interactable: an element is
// clickable when it has a box, is enabled and receives the pointer at its
// centre.
const notClickableJS = `() => {
	if (!this.isConnected || this.disabled) return true;
	const r = this.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return true;
	const hit = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	return !(hit === this || this.contains(hit));
}`

func (e *rodElement) WaitClickable(ctx context.Context, reverse bool) error {
	el, done := e.bind(ctx)
	defer done()

	if !reverse {
		_, err := el.WaitInteractable()
		return classify(errs.Timeout, "element never became clickable", err)
	}

	err := el.Wait(rod.Eval(notClickableJS))
	if isDetached(err) {
		return nil
	}
	return classify(errs.Timeout, "element never became unclickable", err)
}

func (e *rodElement) Find(loc Locator) Ref {
	return func(ctx context.Context) (Element, error) {
		el, done := e.bind(ctx)
		defer done()

		child, err := findOne(el, loc)
		if err != nil {
			return nil, notFound(loc, err)
		}
		return &rodElement{el: child, timeout: e.timeout}, nil
	}
}

// searcher is the lookup surface shared by rod pages and elements.
type searcher interface {
	Element(selector string) (*rod.Element, error)
	ElementX(xpath string) (*rod.Element, error)
	ElementR(selector, jsRegex string) (*rod.Element, error)
	Elements(selector string) (rod.Elements, error)
	ElementsX(xpath string) (rod.Elements, error)
}

func findOne(s searcher, loc Locator) (*rod.Element, error) {
	switch loc.Kind {
	case XPath:
		return s.ElementX(loc.Query)
	case ExactText:
		return s.ElementR(textScope(loc), exactTextPattern(loc.Query))
	default:
		return s.Element(loc.Query)
	}
}

func findAll(ctx context.Context, s searcher, loc Locator) (rod.Elements, error) {
	switch loc.Kind {
	case XPath:
		return s.ElementsX(loc.Query)
	case ExactText:
		candidates, err := s.Elements(textScope(loc))
		if err != nil {
			return nil, err
		}
		var matched rod.Elements
		for _, el := range candidates {
			text, err := el.Context(ctx).Text()
			if err != nil {
				return nil, err
			}
			if text == loc.Query {
				matched = append(matched, el)
			}
		}
		return matched, nil
	default:
		return s.Elements(loc.Query)
	}
}

// exactTextPattern anchors text as a literal, whole-text regex.
func exactTextPattern(text string) string {
	return "^" + genutil.EscapeForPattern(text) + "$"
}

func textScope(loc Locator) string {
	if loc.Tag == "" {
		return "*"
	}
	return loc.Tag
}

func wrapAll(els rod.Elements, timeout time.Duration) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, timeout: timeout})
	}
	return out
}

func notFound(loc Locator, err error) error {
	return errs.Wrap(errs.NotFound, "element not found: "+loc.String(), err)
}

// classify maps a rod error onto the errs taxonomy. Context expiry is always
// a timeout; code applies to everything else.
func classify(code errs.Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Timeout, msg, err)
	}
	var nf *rod.ElementNotFoundError
	if errors.As(err, &nf) {
		return errs.Wrap(errs.NotFound, msg, err)
	}
	return errs.Wrap(code, msg, err)
}

func isNotInteractable(err error) bool {
	var (
		notInteractable *rod.NotInteractableError
		invisible       *rod.InvisibleShapeError
		covered         *rod.CoveredError
		noPointer       *rod.NoPointerEventsError
	)
	return errors.As(err, &notInteractable) ||
		errors.As(err, &invisible) ||
		errors.As(err, &covered) ||
		errors.As(err, &noPointer)
}

// isDetached reports whether err means the element left the DOM, which
// satisfies a wait for disappearance.
func isDetached(err error) bool {
	if err == nil {
		return false
	}
	var gone *rod.ObjectNotFoundError
	if errors.As(err, &gone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "node is detached") ||
		strings.Contains(msg, "cannot find context with specified id")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return classify(errs.Timeout, "pause interrupted", ctx.Err())
	}
}
