package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<html><head><title>Account</title><script>var jane = "Jane";</script></head>
<body>
<ul class="contacts">
  <li class="email primary">jane@example.com</li>
  <li class="phone">555-0100</li>
  <li class="email">j.doe@example.com</li>
</ul>
<template><span class="shadow">hidden</span></template>
</body></html>`

func mustParse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(page)
	require.NoError(t, err)
	return doc
}

func TestDocumentQueries(t *testing.T) {
	doc := mustParse(t)

	assert.Equal(t, html.DocumentNode, doc.Root().Type)
	assert.Equal(t, "body", Tag(doc.Body()))

	emails, err := doc.QueryAll("li.email")
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	first, err := doc.First("li")
	require.NoError(t, err)
	assert.True(t, HasClass(first, "primary"))

	_, err = doc.First("table")
	assert.Error(t, err)
	_, err = doc.QueryAll("li[")
	assert.Error(t, err)
}

func TestCompile(t *testing.T) {
	_, err := Compile("  ")
	assert.Error(t, err)
	_, err = Compile("#\\31 abc, .email")
	assert.NoError(t, err)
}

func TestCountAndMatchesOnly(t *testing.T) {
	doc := mustParse(t)
	primary, err := doc.First(".primary")
	require.NoError(t, err)

	assert.Equal(t, 3, Count(doc.Root(), "ul > li"))
	assert.Equal(t, -1, Count(doc.Root(), "li["))
	assert.True(t, MatchesOnly(doc.Root(), ".primary", primary))
	assert.False(t, MatchesOnly(doc.Root(), ".email", primary))
	assert.True(t, Matches(primary, "li.email"))
	assert.False(t, Matches(primary, "li["))
}

func TestDistinguishesAmongSiblings(t *testing.T) {
	doc := mustParse(t)
	phone, err := doc.First(".phone")
	require.NoError(t, err)

	assert.True(t, DistinguishesAmongSiblings(phone, ".phone"))
	assert.False(t, DistinguishesAmongSiblings(phone, "li"))
	assert.False(t, DistinguishesAmongSiblings(phone, ".email"))
}

func TestFindByText(t *testing.T) {
	doc := mustParse(t)

	el, err := FindByText(doc.Body(), "555-0100")
	require.NoError(t, err)
	assert.Equal(t, "li", Tag(el))

	// Script content is not searched.
	_, err = FindByText(doc.Body(), `var jane`)
	assert.Error(t, err)

	_, err = FindByText(doc.Body(), " ")
	assert.Error(t, err)
}

func TestClassHelpers(t *testing.T) {
	doc := mustParse(t)
	el, err := doc.First(".primary")
	require.NoError(t, err)

	AddClass(el, "dp-pii-hover")
	AddClass(el, "dp-pii-hover")
	assert.Equal(t, []string{"email", "primary", "dp-pii-hover"}, Classes(el))

	removed := RemoveClasses(el, func(c string) bool { return strings.HasPrefix(c, "dp-pii-") })
	assert.True(t, removed)
	assert.False(t, RemoveClasses(el, func(c string) bool { return c == "missing" }))

	RemoveClass(el, "email")
	RemoveClass(el, "primary")
	_, ok := Attr(el, "class")
	assert.False(t, ok, "empty class list drops the attribute")
}

func TestAttrHelpers(t *testing.T) {
	n := &html.Node{Type: html.ElementNode, Data: "INPUT"}
	assert.Equal(t, "input", Tag(n))

	SetAttr(n, "name", "email")
	SetAttr(n, "name", "mail")
	assert.Equal(t, "mail", AttrOr(n, "name"))
	assert.Len(t, n.Attr, 1)

	RemoveAttr(n, "name")
	assert.Empty(t, AttrOr(n, "name"))
	assert.False(t, IsElement(nil))
}

func TestPositions(t *testing.T) {
	doc := mustParse(t)
	items, err := doc.QueryAll("li")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, 3, ChildIndex(items[2]))
	idx, count := TypeIndex(items[1])
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, count)
	assert.Len(t, Siblings(items[0]), 3)

	anc := Ancestors(items[0])
	require.Len(t, anc, 3)
	assert.Equal(t, "ul", Tag(anc[0]))
	assert.Equal(t, "html", Tag(anc[2]))
	assert.Nil(t, Parent(anc[2]))
	assert.Equal(t, doc.Root(), Top(items[0]))
	assert.Equal(t, doc.Body(), BodyOf(items[0]))
}

func TestInTemplate(t *testing.T) {
	doc := mustParse(t)
	li, err := doc.First("li")
	require.NoError(t, err)
	assert.False(t, InTemplate(li))

	var shadow *html.Node
	Walk(doc.Root(), func(n *html.Node) {
		if HasClass(n, "shadow") {
			shadow = n
		}
	})
	require.NotNil(t, shadow)
	assert.True(t, InTemplate(shadow))
}

func TestCloneIsDetached(t *testing.T) {
	doc := mustParse(t)
	ul, err := doc.First("ul")
	require.NoError(t, err)

	c := Clone(ul)
	assert.Nil(t, c.Parent)
	assert.Len(t, Children(c), 3)

	AddClass(Children(c)[0], "changed")
	assert.False(t, HasClass(Children(ul)[0], "changed"))

	out, err := OuterHTML(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<ul class="contacts">`))
	assert.Contains(t, Text(c), "555-0100")
}
