// Package fixture serves a small imitation of a search engine so scenarios
// can run against a deterministic local site.
package fixture

import (
	"fmt"
	"html/template"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// DefaultRevealDelay is how long result pages keep their results hidden.
const DefaultRevealDelay = 150 * time.Millisecond

// Options tunes the fixture site.
type Options struct {
	ResultsPerPage int
	// RevealDelay keeps search results hidden for a while after load, so
	// callers have to wait for them.
	RevealDelay time.Duration
}

// Site is the fixture web app.
type Site struct {
	app  *fiber.App
	opts Options
	log  *zap.Logger
}

// New builds the site. Requests are logged at debug level.
func New(opts Options, log *zap.Logger) *Site {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ResultsPerPage < 1 {
		opts.ResultsPerPage = 10
	}

	s := &Site{opts: opts, log: log.Named("fixture")}
	s.app = fiber.New(fiber.Config{
		AppName:               "pagecheck-fixture",
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	if access, err := zap.NewStdLogAt(s.log, zap.DebugLevel); err == nil {
		s.app.Use(logger.New(logger.Config{Output: access.Writer()}))
	}

	s.app.Get("/", s.home)
	s.app.Get("/search", s.search)
	s.app.Get("/result/:id", s.result)
	return s
}

// App returns the underlying fiber app.
func (s *Site) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown. It blocks.
func (s *Site) Serve(ln net.Listener) error {
	s.log.Info("fixture site listening", zap.String("addr", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Start listens on addr in the background and returns the site's base URL.
// Port 0 picks a free port.
func (s *Site) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		if err := s.Serve(ln); err != nil {
			s.log.Error("fixture site stopped", zap.Error(err))
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// Shutdown stops the site.
func (s *Site) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Site) home(c *fiber.Ctx) error {
	return s.render(c, homeTmpl, nil)
}

type resultLink struct {
	Href  string
	Title string
}

func (s *Site) search(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return c.Redirect("/", fiber.StatusFound)
	}

	links := make([]resultLink, s.opts.ResultsPerPage)
	for i := range links {
		links[i] = resultLink{
			Href:  fmt.Sprintf("/result/%d?q=%s", i+1, template.URLQueryEscaper(q)),
			Title: fmt.Sprintf("%s - result %d", q, i+1),
		}
	}

	return s.render(c, searchTmpl, map[string]any{
		"Query":   q,
		"Results": links,
		"DelayMS": s.opts.RevealDelay.Milliseconds(),
	})
}

func (s *Site) result(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id < 1 || id > s.opts.ResultsPerPage {
		return fiber.NewError(fiber.StatusNotFound, "no such result")
	}
	return s.render(c, resultTmpl, map[string]any{
		"ID":    id,
		"Query": c.Query("q"),
	})
}

func (s *Site) render(c *fiber.Ctx, tmpl *template.Template, data any) error {
	c.Type("html", "utf-8")
	return tmpl.Execute(c.Response().BodyWriter(), data)
}

var homeTmpl = template.Must(template.New("home").Parse(`<!doctype html>
<html><head><title>Search</title></head>
<body>
<form action="/search" method="get">
  <input type="text" name="q" autofocus>
  <input type="submit" name="btnK" value="Search">
</form>
</body></html>`))

var searchTmpl = template.Must(template.New("search").Parse(`<!doctype html>
<html><head><title>{{.Query}} - Search</title></head>
<body>
<form action="/search" method="get">
  <input type="text" name="q" value="{{.Query}}">
  <input type="submit" name="btnK" value="Search">
</form>
<div id="search" style="display:none">
{{range .Results}}  <div class="g"><a href="{{.Href}}"><h3>{{.Title}}</h3></a></div>
{{end}}</div>
<script>setTimeout(function () { document.getElementById("search").style.display = "block"; }, {{.DelayMS}});</script>
</body></html>`))

var resultTmpl = template.Must(template.New("result").Parse(`<!doctype html>
<html><head><title>Result {{.ID}}</title></head>
<body><h1>Result {{.ID}}</h1><p>You searched for {{.Query}}.</p></body></html>`))
