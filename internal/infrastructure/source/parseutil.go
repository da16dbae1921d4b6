package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var commonDateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02 Jan 2006",
	"2006年01月02日",
}

// NormalizeDate parses a date string using the supplied formats first, then a
// set of common fallbacks, interpreting naive values in loc and returning the
// instant in UTC.
func NormalizeDate(value string, formats []string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, format := range append(append([]string{}, formats...), commonDateFormats...) {
		if parsed, err := time.ParseInLocation(format, value, loc); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// AbsoluteURL resolves href against base and guarantees the result is
// absolute and scheme-qualified, the invariant every adapter must hold.
func AbsoluteURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty url")
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", href, err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("relative url %q without base", href)
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	return baseURL.ResolveReference(parsed).String(), nil
}

// SanitizeHTML drops script and style nodes and returns the trimmed body
// markup, ready for hashing and persistence.
func SanitizeHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style").Remove()
	body, err := doc.Find("body").Html()
	if err != nil {
		return raw
	}
	return strings.TrimSpace(body)
}

// expandPageURL substitutes a literal {page} placeholder in list URL
// templates; sources without the placeholder paginate via query params.
func expandPageURL(template string, page int) string {
	return strings.ReplaceAll(template, "{page}", strconv.Itoa(page))
}

// lookupPath walks decoded JSON by a dot-separated path.
func lookupPath(data any, path string) (any, bool) {
	if path == "" {
		return data, data != nil
	}
	current := data
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func stringAt(data any, path string) string {
	value, ok := lookupPath(data, path)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func intAt(data any, path string) (int, bool) {
	value, ok := lookupPath(data, path)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}
