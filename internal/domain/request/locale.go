package request

import (
	"strings"

	"golang.org/x/text/language"
)

// parseLocales orders the Accept-Language entries by quality, dropping
// wildcards and zero-quality entries. It never returns an empty slice:
// fallback is used when the header is absent, unparsable or yields nothing.
func parseLocales(headers []string, fallback language.Tag) []language.Tag {
	if len(headers) == 0 {
		return []language.Tag{fallback}
	}
	parsed, q, err := language.ParseAcceptLanguage(strings.Join(headers, ","))
	if err != nil {
		return []language.Tag{fallback}
	}

	tags := make([]language.Tag, 0, len(parsed))
	for i, tag := range parsed {
		if q[i] <= 0 || tag == language.Und {
			continue
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return []language.Tag{fallback}
	}
	return tags
}
