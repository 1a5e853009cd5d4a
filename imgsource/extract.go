package imgsource

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls candidate image URLs out of a search result page. Search
// page markup drifts, so the refresh only depends on this function type.
type Extractor func(body []byte) []string

const (
	ExtractorQuery    = "query"
	ExtractorOrigin   = "origin"
	ExtractorDocument = "document"
)

var (
	imgURLParamRegex = regexp.MustCompile(`img_url=([^\s"'<>&]+)`)
	originRegex      = regexp.MustCompile(`"w":(\d+),"h":(\d+),"origin":\{[^}]*?(https?:(?:\\?/){2}[^"]*)`)

	artifactSuffixes = []string{"&amp;", "&amp", "&quot;", "&quot"}
)

// ExtractorByName returns one of the built-in extractors.
func ExtractorByName(name string) (Extractor, error) {
	switch name {
	case ExtractorQuery, "":
		return QueryParamExtractor, nil
	case ExtractorOrigin:
		return OriginFragmentExtractor, nil
	case ExtractorDocument:
		return DocumentExtractor, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}

// QueryParamExtractor finds percent-encoded origin URLs passed in img_url
// query parameters anywhere in the page.
func QueryParamExtractor(body []byte) []string {
	matches := imgURLParamRegex.FindAllSubmatch(body, -1)

	raw := make([]string, 0, len(matches))
	for _, m := range matches {
		value := trimArtifacts(string(m[1]))

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			slog.Debug("imgsource: Cannot decode img_url parameter", "value", value, "error", err)
			continue
		}

		raw = append(raw, trimArtifacts(decoded))
	}

	return normalizeCandidates(raw)
}

// OriginFragmentExtractor understands the older result markup where every
// item carried a JSON fragment {"w":..,"h":..,"origin":{..,"url":"..."}}.
func OriginFragmentExtractor(body []byte) []string {
	matches := originRegex.FindAllSubmatch(body, -1)

	raw := make([]string, 0, len(matches))
	for _, m := range matches {
		raw = append(raw, strings.ReplaceAll(string(m[3]), `\/`, `/`))
	}

	return normalizeCandidates(raw)
}

// DocumentExtractor parses the page as HTML and reads the img_url parameter
// of every link. Entity decoding is left to the HTML parser.
func DocumentExtractor(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("imgsource: Cannot parse search result as HTML", "error", err)
		return nil
	}

	var raw []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")

		u, err := url.Parse(href)
		if err != nil {
			return
		}

		if candidate := u.Query().Get("img_url"); candidate != "" {
			raw = append(raw, candidate)
		}
	})

	return normalizeCandidates(raw)
}

func trimArtifacts(value string) string {
	for {
		trimmed := value
		for _, suffix := range artifactSuffixes {
			trimmed = strings.TrimSuffix(trimmed, suffix)
		}
		if trimmed == value {
			return value
		}
		value = trimmed
	}
}

// normalizeCandidates keeps absolute http(s) URLs and drops repeats, keeping
// the order of first appearance.
func normalizeCandidates(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))

	for _, candidate := range raw {
		candidate = strings.TrimSpace(candidate)

		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}

		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		result = append(result, candidate)
	}

	return result
}
