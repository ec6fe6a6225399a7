// Package scenario holds the end-to-end checks run against the search page
// and the runner that executes them one after another.
package scenario

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/page"
)

// Scenario is one named end-to-end check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, p *page.SearchPage, keyword string) error
}

// Scenario names.
const (
	NameSearchShowsResults        = "search-shows-results"
	NameOpenRandomResultNavigates = "open-random-result-navigates"
)

// All returns every scenario in execution order.
func All() []Scenario {
	return []Scenario{
		{
			Name:        NameSearchShowsResults,
			Description: "perform a search and display results",
			Run:         SearchShowsResults,
		},
		{
			Name:        NameOpenRandomResultNavigates,
			Description: "perform a search and open any result",
			Run:         OpenRandomResultNavigates,
		},
	}
}

// Select returns the named scenarios in the order given. No names selects
// every scenario.
func Select(names []string) ([]Scenario, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Scenario, len(all))
	for _, sc := range all {
		byName[sc.Name] = sc
	}

	selected := make([]Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown scenario %q", name))
		}
		selected = append(selected, sc)
	}
	return selected, nil
}

// SearchShowsResults searches for keyword and expects every result title to
// contain it. Matching is case sensitive and at least one result is required.
func SearchShowsResults(ctx context.Context, p *page.SearchPage, keyword string) error {
	if err := searchAndWait(ctx, p, keyword); err != nil {
		return err
	}

	links, err := p.LinksSearchResults()(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return errs.New(errs.Failed, "search returned no results")
	}

	for i, link := range links {
		text, err := p.GetText(ctx, driver.Resolved(link))
		if err != nil {
			return fmt.Errorf("result %d: %w", i, err)
		}
		p.Logger().Debug("search result", zap.Int("index", i), zap.String("text", text))

		if !strings.Contains(text, keyword) {
			return errs.New(errs.Failed, fmt.Sprintf("result %d %q does not contain %q", i, text, keyword))
		}
	}
	return nil
}

// OpenRandomResultNavigates searches for keyword, opens a random result and
// expects the browser to end up at a different address.
func OpenRandomResultNavigates(ctx context.Context, p *page.SearchPage, keyword string) error {
	if err := searchAndWait(ctx, p, keyword); err != nil {
		return err
	}

	before, err := p.CurrentURL(ctx)
	if err != nil {
		return err
	}

	if err := p.OpenRandomResult(ctx); err != nil {
		return err
	}

	if err := p.WaitForURLChange(ctx, before); err != nil {
		if errs.Is(err, errs.Timeout) {
			return errs.Wrap(errs.Failed, "opening a result did not leave "+before, err)
		}
		return err
	}

	after, err := p.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if after == before {
		return errs.New(errs.Failed, "opening a result did not leave "+before)
	}
	p.Logger().Debug("opened result", zap.String("from", before), zap.String("to", after))
	return nil
}

// searchAndWait opens the page, searches and waits for the first result.
func searchAndWait(ctx context.Context, p *page.SearchPage, keyword string) error {
	if err := p.Open(ctx); err != nil {
		return err
	}
	if err := p.PerformSearch(ctx, keyword); err != nil {
		return err
	}
	return p.WaitForDisplayed(ctx, p.FirstSearchResult(), false)
}
