package page_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/driver/drivertest"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/page"
)

var inputLoc = driver.ByCSS(`[name="field"]`)

func newBase(t *testing.T) (*drivertest.Fake, *page.Base) {
	t.Helper()
	f := drivertest.New()
	b, err := page.NewBase(f, "http://localhost:8080/app/", nil)
	require.NoError(t, err)
	return f, b
}

func TestNewBase_RejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://bad", "/relative"} {
		_, err := page.NewBase(drivertest.New(), raw, nil)
		assert.True(t, errs.Is(err, errs.InvalidArgument), "base url %q", raw)
	}
}

func TestOpen_ResolvesAgainstBaseURL(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()

	require.NoError(t, b.Open(ctx, "/"))
	assert.Equal(t, "http://localhost:8080/", f.URL())

	require.NoError(t, b.Open(ctx, "search?q=dogs"))
	assert.Equal(t, "http://localhost:8080/app/search?q=dogs", f.URL())

	require.NoError(t, b.Open(ctx, "https://example.com/x"))
	assert.Equal(t, "https://example.com/x", f.URL())
}

func TestSetValue_ReplacesPreviousValue(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()
	input := f.NewElement("input")
	f.Add(inputLoc, input)

	ref := f.Find(inputLoc)
	require.NoError(t, b.SetValue(ctx, ref, "hello"))
	require.NoError(t, b.SetValue(ctx, ref, "world"))

	v, err := b.GetValue(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "world", v)
}

func TestSetValue_WaitsThenClearsThenTypes(t *testing.T) {
	f, b := newBase(t)
	f.Add(inputLoc, f.NewElement("input"))

	require.NoError(t, b.SetValue(context.Background(), f.Find(inputLoc), "hello"))
	assert.Equal(t, []string{
		"wait-displayed:input:false",
		"clear:input",
		"set-value:input:hello",
	}, f.Calls())
}

func TestSetValueViaScript_ClicksBody(t *testing.T) {
	f, b := newBase(t)
	input := f.NewElement("input")
	f.Add(inputLoc, input)

	require.NoError(t, b.SetValueViaScript(context.Background(), f.Find(inputLoc), "x"))
	assert.Equal(t, "x", input.CurrentValue())
	assert.Equal(t, []string{"script-set-value:input:x", "click:body"}, f.Calls())
}

func TestClick_WaitsForDisplayedAndClickable(t *testing.T) {
	f, b := newBase(t)
	f.Add(inputLoc, f.NewElement("button"))

	require.NoError(t, b.Click(context.Background(), f.Find(inputLoc)))
	assert.Equal(t, []string{
		"wait-displayed:button:false",
		"wait-clickable:button:false",
		"click:button",
	}, f.Calls())
}

func TestClick_NeverClickableIsInteractionError(t *testing.T) {
	f, b := newBase(t)
	f.Timeout = 20 * time.Millisecond
	f.Add(inputLoc, f.NewElement("button").SetClickable(false))

	err := b.Click(context.Background(), f.Find(inputLoc))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Interaction))
	assert.NotContains(t, f.Calls(), "click:button")
}

func TestClick_BecomesClickableLater(t *testing.T) {
	f, b := newBase(t)
	button := f.NewElement("button").SetClickable(false)
	f.Add(inputLoc, button)

	go func() {
		time.Sleep(10 * time.Millisecond)
		button.SetClickable(true)
	}()

	require.NoError(t, b.Click(context.Background(), f.Find(inputLoc)))
}

func TestClick_MissingElementIsNotFound(t *testing.T) {
	_, b := newBase(t)
	f := b.Driver().(*drivertest.Fake)

	err := b.Click(context.Background(), f.Find(inputLoc))
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestClickViaScript_SkipsWaits(t *testing.T) {
	f, b := newBase(t)
	f.Add(inputLoc, f.NewElement("button").SetDisplayed(false))

	require.NoError(t, b.ClickViaScript(context.Background(), f.Find(inputLoc)))
	assert.Equal(t, []string{"script-click:button"}, f.Calls())
}

func TestGetText_HiddenElementIsNotFound(t *testing.T) {
	f, b := newBase(t)
	f.Timeout = 20 * time.Millisecond
	f.Add(inputLoc, f.NewElement("label").SetText("hi").SetDisplayed(false))

	_, err := b.GetText(context.Background(), f.Find(inputLoc))
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestRefs_ResolveAgainOnEveryCall(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()
	f.Add(inputLoc, f.NewElement("old").SetText("before"))
	ref := f.Find(inputLoc)

	text, err := b.GetText(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "before", text)

	// The page re-renders and replaces the node.
	f.Add(inputLoc, f.NewElement("new").SetText("after"))

	text, err = b.GetText(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "after", text)
	assert.Equal(t, 2, f.Resolutions(inputLoc))
}

func TestIsDisplayedAndIsSelected_DoNotWait(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()
	f.Add(inputLoc, f.NewElement("box").SetDisplayed(false).SetSelected(true))

	shown, err := b.IsDisplayed(ctx, f.Find(inputLoc))
	require.NoError(t, err)
	assert.False(t, shown)

	selected, err := b.IsSelected(ctx, f.Find(inputLoc))
	require.NoError(t, err)
	assert.True(t, selected)

	assert.Equal(t, []string{"displayed:box", "selected:box"}, f.Calls())
}

func TestWaitForDisplayed(t *testing.T) {
	t.Run("already displayed", func(t *testing.T) {
		f, b := newBase(t)
		f.Add(inputLoc, f.NewElement("el"))
		assert.NoError(t, b.WaitForDisplayed(context.Background(), f.Find(inputLoc), false))
	})

	t.Run("reversed resolves once hidden", func(t *testing.T) {
		f, b := newBase(t)
		el := f.NewElement("el")
		f.Add(inputLoc, el)

		go func() {
			time.Sleep(10 * time.Millisecond)
			el.SetDisplayed(false)
		}()
		assert.NoError(t, b.WaitForDisplayed(context.Background(), f.Find(inputLoc), true))
	})

	t.Run("reversed on hidden element returns at once", func(t *testing.T) {
		f, b := newBase(t)
		f.Timeout = time.Millisecond
		f.Add(inputLoc, f.NewElement("el").SetDisplayed(false))
		assert.NoError(t, b.WaitForDisappearance(context.Background(), f.Find(inputLoc)))
	})

	t.Run("reversed on missing element", func(t *testing.T) {
		f, b := newBase(t)
		assert.NoError(t, b.WaitForDisappearance(context.Background(), f.Find(inputLoc)))
	})

	t.Run("times out", func(t *testing.T) {
		f, b := newBase(t)
		f.Timeout = 20 * time.Millisecond
		f.Add(inputLoc, f.NewElement("el").SetDisplayed(false))

		err := b.WaitForDisplayed(context.Background(), f.Find(inputLoc), false)
		assert.True(t, errs.Is(err, errs.Timeout))
	})
}

func TestWaitForClickable_Reversed(t *testing.T) {
	f, b := newBase(t)
	el := f.NewElement("el")
	f.Add(inputLoc, el)

	go func() {
		time.Sleep(10 * time.Millisecond)
		el.SetClickable(false)
	}()
	require.NoError(t, b.WaitForClickable(context.Background(), f.Find(inputLoc), true))
	assert.Contains(t, f.Calls(), "wait-clickable:el:true")
}

func TestPauseAndSendKeys_GoToDriver(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()

	require.NoError(t, b.Pause(ctx, page.DefaultPause))
	require.NoError(t, b.SendKeys(ctx, driver.KeyTab, "abc"))

	assert.Equal(t, []string{"pause:1s", `keys:""`, `keys:"abc"`}, f.Calls())
	assert.Equal(t, []string{driver.KeyTab, "abc"}, f.Keys())
}

func TestWaitForURLChange(t *testing.T) {
	f, b := newBase(t)
	ctx := context.Background()
	require.NoError(t, b.Open(ctx, "/"))
	from, err := b.CurrentURL(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.Navigate(ctx, "http://localhost:8080/next")
	}()
	require.NoError(t, b.WaitForURLChange(ctx, from))

	f.Timeout = 20 * time.Millisecond
	err = b.WaitForURLChange(ctx, f.URL())
	assert.True(t, errs.Is(err, errs.Timeout))
}
