// Package extract pulls product image candidates out of raw page HTML. The
// rules run in strict priority order: open-graph metadata first, then the
// vendor's tagged representative image, then CDN URL patterns found in markup
// or embedded JSON, and finally generic product-image fields.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Pages shorter than this are treated as block/error interstitials rather
// than product pages.
const minPageLength = 500

// blockedMarkers identify vendor error and rate-limit interstitials.
var blockedMarkers = []string{
	"현재 서비스 접속이 불가합니다",
	"module_error",
	"동시에 접속하는 이용자 수가 많거나",
	"시스템오류",
	"접속이 불가합니다",
}

var (
	cdnAttrRe = regexp.MustCompile(`(?i)(https?://[^"'<>\s]*(?:shop-phinf|phinf\.pstatic)[^"'<>\s]*\.(?:jpg|jpeg|png|webp)[^"'<>\s]*)`)

	// Embedded JSON often carries escaped URLs; candidates are unescaped
	// before validation.
	cdnJSONRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)["'](https?://[^"']*shop-phinf[^"']*\.(?:jpg|jpeg|png|webp)[^"']*)["']`),
		regexp.MustCompile(`(?i)"(https?://[^"]*phinf\.pstatic[^"]*\.(?:jpg|jpeg|png|webp)[^"]*)"`),
		regexp.MustCompile(`(?i)"imageUrl"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"representativeImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"image"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"thumbUrl"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"productImage"\s*:\s*"([^"]+)"`),
	}

	broadCDNRe = regexp.MustCompile(`(?i)(https?://[a-zA-Z0-9.-]*pstatic\.net/[^"'<>\s]+\.(?:jpg|jpeg|png|webp)[^"'<>\s]*)`)

	genericJSONRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"image"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"productImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"mainImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"thumbnail"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)data-src=["']([^"']+\.(?:jpg|jpeg|png|webp)[^"']*)["']`),
	}

	excludeRe      = regexp.MustCompile(`(?i)logo|icon|banner|ad|spinner|1x1|pixel`)
	excludeBroadRe = regexp.MustCompile(`(?i)logo|icon|banner|ad`)
)

// IsBlockedPage reports whether the HTML is a vendor error/blocked page or too
// short to be a real product page.
func IsBlockedPage(html string) bool {
	if len(html) < minPageLength {
		return true
	}
	for _, marker := range blockedMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// FromHTML runs the extraction rules against raw HTML and returns the best
// image candidate. Blocked pages yield an empty candidate with no title so the
// caller can fall through to the next scraping strategy.
func FromHTML(html string) thumbnail.ImageCandidate {
	if IsBlockedPage(html) {
		return thumbnail.ImageCandidate{}
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))

	var title string
	if docErr == nil {
		title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).First().AttrOr("content", ""))

		if img := cleanURL(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")); img != "" {
			return thumbnail.ImageCandidate{URL: img, Title: title}
		}

		// Smartstore tags its hero image with a fixed alt text.
		if strings.Contains(html, "대표이미지") {
			if img := cleanURL(doc.Find(`img[alt="대표이미지"]`).First().AttrOr("src", "")); img != "" {
				return thumbnail.ImageCandidate{URL: img, Title: title}
			}
		}
	}

	if m := cdnAttrRe.FindStringSubmatch(html); m != nil {
		if img := cleanURL(m[1]); img != "" {
			return thumbnail.ImageCandidate{URL: img, Title: title}
		}
	}

	for _, re := range cdnJSONRes {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		img := cleanURL(m[1])
		if img == "" || !isVendorCDN(img) || excludeRe.MatchString(img) {
			continue
		}
		return thumbnail.ImageCandidate{URL: img, Title: title}
	}

	if m := broadCDNRe.FindStringSubmatch(html); m != nil {
		if img := cleanURL(m[1]); img != "" && !excludeBroadRe.MatchString(img) {
			return thumbnail.ImageCandidate{URL: img, Title: title}
		}
	}

	for _, re := range genericJSONRes {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		img := cleanURL(m[1])
		if img == "" || excludeRe.MatchString(img) {
			continue
		}
		return thumbnail.ImageCandidate{URL: img, Title: title}
	}

	return thumbnail.ImageCandidate{Title: title}
}

// cleanURL unescapes JSON-escaped slashes, trims whitespace, and rejects
// anything that is not an absolute http(s) URL.
func cleanURL(raw string) string {
	u := strings.TrimSpace(strings.ReplaceAll(raw, `\/`, "/"))
	if !strings.HasPrefix(u, "http") {
		return ""
	}
	return u
}

func isVendorCDN(u string) bool {
	return strings.Contains(u, "shop-phinf") ||
		strings.Contains(u, "phinf") ||
		strings.Contains(u, "pstatic")
}
