package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ahrdadan/pagecheck/internal/driver"
)

// PageOptions represents options applied to every scenario page.
type PageOptions struct {
	WaitTimeout    time.Duration     `mapstructure:"wait_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
	Cookies        []CookieParam     `mapstructure:"cookies"`
	ViewportWidth  int               `mapstructure:"viewport_width"`
	ViewportHeight int               `mapstructure:"viewport_height"`
}

// CookieParam is a cookie set before the first navigation, e.g. to dismiss
// a consent banner.
type CookieParam struct {
	Name     string `mapstructure:"name"`
	Value    string `mapstructure:"value"`
	URL      string `mapstructure:"url"`
	Domain   string `mapstructure:"domain"`
	Path     string `mapstructure:"path"`
	Expires  int64  `mapstructure:"expires"`
	HTTPOnly bool   `mapstructure:"http_only"`
	Secure   bool   `mapstructure:"secure"`
}

// DefaultPageOptions returns default page options
func DefaultPageOptions() PageOptions {
	return PageOptions{
		WaitTimeout:    driver.DefaultWaitTimeout,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	}
}

// Session is one fresh page and the driver bound to it.
type Session struct {
	Page   *rod.Page
	Driver *driver.RodDriver
}

// OpenSession creates a page on c, applies opts for siteURL and wraps it in
// a driver. The caller must Close the session.
func OpenSession(ctx context.Context, c Client, siteURL string, opts PageOptions) (*Session, error) {
	page, err := c.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	if err := applyPageOptions(page, siteURL, opts); err != nil {
		_ = page.Close()
		return nil, err
	}

	return &Session{
		Page:   page,
		Driver: driver.NewRodDriver(page, opts.WaitTimeout),
	}, nil
}

// Close closes the page.
func (s *Session) Close() error {
	if s == nil || s.Page == nil {
		return nil
	}
	return s.Page.Close()
}

func applyPageOptions(page *rod.Page, targetURL string, opts PageOptions) error {
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if len(opts.Headers) > 0 {
		pairs := make([]string, 0, len(opts.Headers)*2)
		for key, value := range opts.Headers {
			pairs = append(pairs, key, value)
		}
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			return fmt.Errorf("failed to set headers: %w", err)
		}
	}

	if len(opts.Cookies) > 0 {
		if err := page.SetCookies(toCookieParams(targetURL, opts.Cookies)); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	return nil
}

// toCookieParams converts cookies, scoping any without URL or domain to
// targetURL.
func toCookieParams(targetURL string, cookies []CookieParam) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	parsedURL, _ := url.Parse(targetURL)

	for _, cookie := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			URL:      cookie.URL,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
		}

		if cookie.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(cookie.Expires)
		}

		if param.URL == "" && param.Domain == "" && parsedURL != nil {
			param.URL = parsedURL.String()
		}

		params = append(params, param)
	}

	return params
}
