package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"doorman/pkg/domain"
)

var escapeHTML = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace

func TestRender(t *testing.T) {
	user := domain.User{ID: 7, FirstName: "Ada"}

	t.Run("plain text passes through", func(t *testing.T) {
		got := Render(escapeHTML, "welcome to the group", user, 60)
		assert.Equal(t, "welcome to the group", got)
	})

	t.Run("template is escaped as a unit", func(t *testing.T) {
		got := Render(escapeHTML, "a <b> & c", user, 60)
		assert.Equal(t, "a &lt;b&gt; &amp; c", got)
	})

	t.Run("dollar escape yields exactly one dollar", func(t *testing.T) {
		got := Render(escapeHTML, "pay $$5", user, 60)
		assert.Equal(t, "pay $5", got)
	})

	t.Run("user mention", func(t *testing.T) {
		got := Render(escapeHTML, "hi $u!", user, 60)
		assert.Equal(t, `hi <a href="tg://user?id=7">Ada</a>!`, got)
	})

	t.Run("display name includes last name and is escaped", func(t *testing.T) {
		u := domain.User{ID: 9, FirstName: "A<a>", LastName: "B&b"}
		got := Render(escapeHTML, "$u", u, 60)
		assert.Equal(t, `<a href="tg://user?id=9">A&lt;a&gt; B&amp;b</a>`, got)
	})

	t.Run("name is escaped once, not re-escaped with the template", func(t *testing.T) {
		u := domain.User{ID: 9, FirstName: "<"}
		got := Render(escapeHTML, "$u", u, 60)
		assert.Equal(t, `<a href="tg://user?id=9">&lt;</a>`, got)
	})

	t.Run("timeout substitution", func(t *testing.T) {
		got := Render(escapeHTML, "you have $t seconds", user, 45)
		assert.Equal(t, "you have 45 seconds", got)
	})

	t.Run("unknown escape is dropped", func(t *testing.T) {
		got := Render(escapeHTML, "a$xb", user, 60)
		assert.Equal(t, "ab", got)
	})

	t.Run("unknown multibyte escape is dropped whole", func(t *testing.T) {
		got := Render(escapeHTML, "price: $€10", user, 60)
		assert.Equal(t, "price: 10", got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("multibyte text passes through intact", func(t *testing.T) {
		got := Render(escapeHTML, "歡迎 $u,$t 秒內回覆", user, 60)
		assert.Equal(t, `歡迎 <a href="tg://user?id=7">Ada</a>,60 秒內回覆`, got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("trailing dollar emits nothing", func(t *testing.T) {
		got := Render(escapeHTML, "abc$", user, 60)
		assert.Equal(t, "abc", got)
	})

	t.Run("idempotent on placeholder-free text", func(t *testing.T) {
		const text = "no placeholders here"
		once := Render(escapeHTML, text, user, 60)
		twice := Render(escapeHTML, once, user, 60)
		assert.Equal(t, once, twice)
	})
}
