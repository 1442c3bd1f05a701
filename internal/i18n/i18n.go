// Package i18n provides locale-keyed message formatting for user-facing
// replies. Catalogs are embedded JSON maps from message key to a
// fmt.Sprintf pattern.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLang is the fallback locale for missing catalogs and keys.
const DefaultLang = "en_US"

// Bundle holds all loaded locale catalogs.
type Bundle struct {
	catalogs map[string]map[string]string
	langs    []string
}

// Load parses every embedded catalog. Fails if the default locale is absent
// or any catalog is malformed; catalogs ship with the binary, so this is a
// build problem, not a runtime condition.
func Load() (*Bundle, error) {
	b := &Bundle{catalogs: make(map[string]map[string]string)}

	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, e := range entries {
		lang := strings.TrimSuffix(e.Name(), ".json")
		raw, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}
		var catalog map[string]string
		if err := json.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}
		b.catalogs[lang] = catalog
		b.langs = append(b.langs, lang)
	}
	sort.Strings(b.langs)

	if _, ok := b.catalogs[DefaultLang]; !ok {
		return nil, fmt.Errorf("default locale %s missing", DefaultLang)
	}
	return b, nil
}

// Format renders the pattern for key in lang, falling back key-wise to the
// default locale and finally to the key itself. No validation is applied to
// lang: unknown locales simply resolve through the fallback chain.
func (b *Bundle) Format(lang, key string, args ...any) string {
	pattern, ok := b.catalogs[lang][key]
	if !ok {
		pattern, ok = b.catalogs[DefaultLang][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return pattern
	}
	return fmt.Sprintf(pattern, args...)
}

// Languages lists the loaded locale names in sorted order.
func (b *Bundle) Languages() []string {
	out := make([]string, len(b.langs))
	copy(out, b.langs)
	return out
}
