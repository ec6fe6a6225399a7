package page

import (
	"context"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/genutil"
)

// Search page selectors.
const (
	SearchInputSelector   = `[name="q"]`
	SearchSubmitSelector  = `[name="btnK"]`
	SearchResultsSelector = "a h3"
)

// SearchPage is the search engine landing page and its result list.
type SearchPage struct {
	*Base
}

// NewSearchPage wraps base as the search page.
func NewSearchPage(base *Base) *SearchPage {
	return &SearchPage{Base: base}
}

// InputSearchBox references the query input.
func (p *SearchPage) InputSearchBox() driver.Ref {
	return p.drv.Find(driver.ByCSS(SearchInputSelector))
}

// ButtonSearch references the submit button.
func (p *SearchPage) ButtonSearch() driver.Ref {
	return p.drv.Find(driver.ByCSS(SearchSubmitSelector))
}

// LinksSearchResults references every result link title.
func (p *SearchPage) LinksSearchResults() driver.Refs {
	return p.drv.FindAll(driver.ByCSS(SearchResultsSelector))
}

// FirstSearchResult references the first result link title.
func (p *SearchPage) FirstSearchResult() driver.Ref {
	return p.drv.Find(driver.ByCSS(SearchResultsSelector))
}

// Open loads the landing page.
func (p *SearchPage) Open(ctx context.Context) error {
	return p.Base.Open(ctx, "/")
}

// PerformSearch types keyword into the search box and presses Enter. It does
// not wait for results.
func (p *SearchPage) PerformSearch(ctx context.Context, keyword string) error {
	p.logger.Info("perform search", zap.String("keyword", keyword))
	if err := p.SetValue(ctx, p.InputSearchBox(), keyword); err != nil {
		return err
	}
	return p.SendKeys(ctx, driver.KeyEnter)
}

// OpenRandomResult clicks one result chosen uniformly from the current list.
func (p *SearchPage) OpenRandomResult(ctx context.Context) error {
	results, err := p.LinksSearchResults()(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errs.New(errs.NotFound, "no search results to open")
	}

	i, err := genutil.RandomInt(len(results) - 1)
	if err != nil {
		return err
	}
	p.logger.Info("open random result", zap.Int("index", i), zap.Int("count", len(results)))
	return p.Click(ctx, driver.Resolved(results[i]))
}
