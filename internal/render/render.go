// Package render expands verification message templates against a joining
// user's identity and the group's timeout.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"doorman/pkg/domain"
)

// Escaper escapes text for the platform's HTML markup. The chat client
// supplies it so the renderer stays platform-agnostic about escaping rules.
type Escaper func(string) string

// Render escapes the template as a unit, then expands the two-character
// placeholder sequences:
//
//	$$  a literal $
//	$u  an inline mention of the user, name escaped independently
//	$t  the timeout in seconds as a decimal string
//
// Any other escaped rune is dropped whole. A trailing $ at end of input is
// consumed and emits nothing.
func Render(escape Escaper, tmpl string, user domain.User, timeoutSeconds int) string {
	tmpl = escape(tmpl)

	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if tmpl[i] != '$' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		i++
		if i >= len(tmpl) {
			break
		}
		r, size := utf8.DecodeRuneInString(tmpl[i:])
		i += size
		switch r {
		case '$':
			b.WriteByte('$')
		case 'u':
			fmt.Fprintf(&b, `<a href="tg://user?id=%d">%s</a>`, user.ID, escape(user.DisplayName()))
		case 't':
			b.WriteString(strconv.Itoa(timeoutSeconds))
		default:
			// unknown escape: drop the whole rune
		}
	}
	return b.String()
}
