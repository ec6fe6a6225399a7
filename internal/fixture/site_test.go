package fixture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, s *Site, target string) (*http.Response, string) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHome_HasSearchForm(t *testing.T) {
	s := New(Options{ResultsPerPage: 3}, nil)

	resp, body := get(t, s, "/")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `name="q"`)
	assert.Contains(t, body, `name="btnK"`)
	assert.Contains(t, body, `action="/search"`)
}

func TestSearch_RendersResultsContainingQuery(t *testing.T) {
	s := New(Options{ResultsPerPage: 4}, nil)

	resp, body := get(t, s, "/search?q=Dogs")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, strings.Count(body, "<h3>"))
	assert.Equal(t, 4, strings.Count(body, "<h3>Dogs - result "))
	assert.Contains(t, body, `href="/result/1?q=Dogs"`)
	assert.Contains(t, body, `value="Dogs"`)
}

func TestSearch_EscapesQuery(t *testing.T) {
	s := New(Options{ResultsPerPage: 1}, nil)

	_, body := get(t, s, "/search?q=%3Cb%3Ex%3C%2Fb%3E")
	assert.NotContains(t, body, "<b>x</b>")
	assert.Contains(t, body, "&lt;b&gt;x&lt;/b&gt; - result 1")
}

func TestSearch_EmptyQueryRedirectsHome(t *testing.T) {
	s := New(Options{}, nil)

	resp, _ := get(t, s, "/search?q=")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestResult(t *testing.T) {
	s := New(Options{ResultsPerPage: 2}, nil)

	resp, body := get(t, s, "/result/2?q=Dogs")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>Result 2</h1>")
	assert.Contains(t, body, "You searched for Dogs.")

	for _, target := range []string{"/result/0", "/result/3", "/result/abc"} {
		resp, _ := get(t, s, target)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, target)
	}
}

func TestStart_ServesOverTCP(t *testing.T) {
	s := New(Options{ResultsPerPage: 1}, nil)
	base, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	resp, err := http.Get(base + "/search?q=Cats")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Cats - result 1")
}
