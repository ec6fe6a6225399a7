package driver

import (
	"context"
	"regexp"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSearcher records which rod lookup a locator turned into.
type recordingSearcher struct {
	method   string
	selector string
	regex    string
	found    *rod.Element
	all      rod.Elements
}

func (s *recordingSearcher) Element(selector string) (*rod.Element, error) {
	s.method, s.selector = "Element", selector
	return s.found, nil
}

func (s *recordingSearcher) ElementX(xpath string) (*rod.Element, error) {
	s.method, s.selector = "ElementX", xpath
	return s.found, nil
}

func (s *recordingSearcher) ElementR(selector, jsRegex string) (*rod.Element, error) {
	s.method, s.selector, s.regex = "ElementR", selector, jsRegex
	return s.found, nil
}

func (s *recordingSearcher) Elements(selector string) (rod.Elements, error) {
	s.method, s.selector = "Elements", selector
	return s.all, nil
}

func (s *recordingSearcher) ElementsX(xpath string) (rod.Elements, error) {
	s.method, s.selector = "ElementsX", xpath
	return s.all, nil
}

func TestTextScope(t *testing.T) {
	assert.Equal(t, "*", textScope(ByExactText("", "Dogs")))
	assert.Equal(t, "h3", textScope(ByExactText("h3", "Dogs")))
}

func TestExactTextPattern(t *testing.T) {
	for _, text := range []string{"Dogs", "a.b*c", "(1+1)=2?", `C:\path [x]`, "$5 ^up|down", ""} {
		re, err := regexp.Compile(exactTextPattern(text))
		require.NoError(t, err, text)
		assert.True(t, re.MatchString(text), text)
		assert.False(t, re.MatchString(text+" more"), text)
		assert.False(t, re.MatchString("x"+text), text)
	}
	assert.False(t, regexp.MustCompile(exactTextPattern("a.c")).MatchString("abc"))
}

func TestFindOne(t *testing.T) {
	want := &rod.Element{}

	s := &recordingSearcher{found: want}
	got, err := findOne(s, ByExactText("h3", "Dogs & cats (2)"))
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, "ElementR", s.method)
	assert.Equal(t, "h3", s.selector)
	assert.Equal(t, `^Dogs & cats \(2\)$`, s.regex)

	s = &recordingSearcher{found: want}
	_, err = findOne(s, ByXPath("//a"))
	require.NoError(t, err)
	assert.Equal(t, "ElementX", s.method)
	assert.Equal(t, "//a", s.selector)

	s = &recordingSearcher{found: want}
	_, err = findOne(s, ByCSS("a h3"))
	require.NoError(t, err)
	assert.Equal(t, "Element", s.method)
	assert.Equal(t, "a h3", s.selector)
}

func TestFindAll(t *testing.T) {
	ctx := context.Background()

	s := &recordingSearcher{}
	els, err := findAll(ctx, s, ByExactText("", "Dogs"))
	require.NoError(t, err)
	assert.Empty(t, els)
	assert.Equal(t, "Elements", s.method)
	assert.Equal(t, "*", s.selector)

	s = &recordingSearcher{}
	_, err = findAll(ctx, s, ByXPath("//h3"))
	require.NoError(t, err)
	assert.Equal(t, "ElementsX", s.method)

	s = &recordingSearcher{}
	_, err = findAll(ctx, s, ByCSS("a h3"))
	require.NoError(t, err)
	assert.Equal(t, "Elements", s.method)
	assert.Equal(t, "a h3", s.selector)
}
