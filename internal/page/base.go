// Package page holds the page objects. Base wraps driver element operations
// with wait-before-act discipline; concrete pages embed it and add their own
// locators and actions.
package page

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/errs"
)

// DefaultPause is the delay used by Pause when callers have no better figure.
const DefaultPause = time.Second

// Base is the behaviour shared by every page object. It holds no element
// state: every operation resolves its Ref again before acting.
type Base struct {
	drv     driver.Driver
	baseURL *url.URL
	logger  *zap.Logger
}

// NewBase binds the wrapper to one browser session. Relative paths given to
// Open are resolved against baseURL.
func NewBase(drv driver.Driver, baseURL string, logger *zap.Logger) (*Base, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid base url %q", baseURL), err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{drv: drv, baseURL: u, logger: logger}, nil
}

// Driver returns the session the page drives.
func (b *Base) Driver() driver.Driver {
	return b.drv
}

// Logger returns the page logger.
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

// Open navigates to path relative to the base URL.
func (b *Base) Open(ctx context.Context, path string) error {
	ref, err := url.Parse(path)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid path %q", path), err)
	}
	target := b.baseURL.ResolveReference(ref).String()
	b.logger.Debug("open", zap.String("url", target))
	return b.drv.Navigate(ctx, target)
}

// Click waits until the element is displayed and clickable, then clicks it.
func (b *Base) Click(ctx context.Context, ref driver.Ref) error {
	el, err := ref(ctx)
	if err != nil {
		return err
	}
	if err := el.WaitDisplayed(ctx, false); err != nil {
		return errs.Wrap(errs.Interaction, "element not displayed before click", err)
	}
	if err := el.WaitClickable(ctx, false); err != nil {
		return errs.Wrap(errs.Interaction, "element not clickable before click", err)
	}
	return el.Click(ctx)
}

// ClickViaScript clicks from page script without any readiness wait, for
// elements whose normal click is intercepted by an overlay.
func (b *Base) ClickViaScript(ctx context.Context, ref driver.Ref) error {
	el, err := ref(ctx)
	if err != nil {
		return err
	}
	return el.ClickViaScript(ctx)
}

// SetValue waits until the element is displayed, clears it, then types text.
// The previous value never survives.
func (b *Base) SetValue(ctx context.Context, ref driver.Ref, text string) error {
	el, err := ref(ctx)
	if err != nil {
		return err
	}
	if err := el.WaitDisplayed(ctx, false); err != nil {
		return errs.Wrap(errs.Interaction, "element not displayed before set value", err)
	}
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SetValue(ctx, text)
}

// SetValueViaScript assigns the value from page script and then clicks the
// document body to commit it, so focus leaves the element.
func (b *Base) SetValueViaScript(ctx context.Context, ref driver.Ref, text string) error {
	el, err := ref(ctx)
	if err != nil {
		return err
	}
	return el.SetValueViaScript(ctx, text)
}

// GetValue returns the element value once it is displayed.
func (b *Base) GetValue(ctx context.Context, ref driver.Ref) (string, error) {
	el, err := b.displayed(ctx, ref)
	if err != nil {
		return "", err
	}
	return el.Value(ctx)
}

// GetText returns the element text once it is displayed.
func (b *Base) GetText(ctx context.Context, ref driver.Ref) (string, error) {
	el, err := b.displayed(ctx, ref)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}

func (b *Base) displayed(ctx context.Context, ref driver.Ref) (driver.Element, error) {
	el, err := ref(ctx)
	if err != nil {
		return nil, err
	}
	if err := el.WaitDisplayed(ctx, false); err != nil {
		return nil, errs.Wrap(errs.NotFound, "element never became displayed", err)
	}
	return el, nil
}

// IsDisplayed reports the current visibility without waiting.
func (b *Base) IsDisplayed(ctx context.Context, ref driver.Ref) (bool, error) {
	el, err := ref(ctx)
	if err != nil {
		return false, err
	}
	return el.Displayed(ctx)
}

// IsSelected reports the current selection state without waiting.
func (b *Base) IsSelected(ctx context.Context, ref driver.Ref) (bool, error) {
	el, err := ref(ctx)
	if err != nil {
		return false, err
	}
	return el.Selected(ctx)
}

// WaitForDisplayed blocks until the element is displayed, or, when reversed,
// until it is not. An element that cannot be found counts as not displayed.
func (b *Base) WaitForDisplayed(ctx context.Context, ref driver.Ref, reversed bool) error {
	el, err := ref(ctx)
	if err != nil {
		if reversed && errs.Is(err, errs.NotFound) {
			return nil
		}
		return err
	}
	return el.WaitDisplayed(ctx, reversed)
}

// WaitForClickable blocks until the element is clickable, or, when reversed,
// until it is not.
func (b *Base) WaitForClickable(ctx context.Context, ref driver.Ref, reversed bool) error {
	el, err := ref(ctx)
	if err != nil {
		if reversed && errs.Is(err, errs.NotFound) {
			return nil
		}
		return err
	}
	return el.WaitClickable(ctx, reversed)
}

// WaitForDisappearance is WaitForDisplayed reversed.
func (b *Base) WaitForDisappearance(ctx context.Context, ref driver.Ref) error {
	return b.WaitForDisplayed(ctx, ref, true)
}

// Pause is an unconditional delay. It synchronises with nothing; prefer one
// of the WaitFor methods.
func (b *Base) Pause(ctx context.Context, d time.Duration) error {
	b.logger.Debug("unconditional pause", zap.Duration("duration", d))
	return b.drv.Pause(ctx, d)
}

// SendKeys sends keys to whatever has input focus.
func (b *Base) SendKeys(ctx context.Context, keys ...string) error {
	return b.drv.SendKeys(ctx, keys...)
}

// CurrentURL returns the address of the loaded document.
func (b *Base) CurrentURL(ctx context.Context) (string, error) {
	return b.drv.CurrentURL(ctx)
}

// WaitForURLChange blocks until the document address is no longer from.
func (b *Base) WaitForURLChange(ctx context.Context, from string) error {
	return b.drv.WaitURLChange(ctx, from)
}
