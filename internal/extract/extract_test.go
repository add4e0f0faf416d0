package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// pad grows a document past the blocked-page length threshold without adding
// anything the extraction rules could match.
func pad(html string) string {
	return html + "<!-- " + strings.Repeat("x", minPageLength) + " -->"
}

func TestIsBlockedPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want bool
	}{
		{"empty", "", true},
		{"too short", "<html><body>ok</body></html>", true},
		{"service unavailable marker", pad("현재 서비스 접속이 불가합니다"), true},
		{"module error marker", pad(`<div class="module_error"></div>`), true},
		{"congestion marker", pad("동시에 접속하는 이용자 수가 많거나"), true},
		{"normal page", pad("<html><body>상품 상세</body></html>"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsBlockedPage(tc.html))
		})
	}
}

func TestFromHTMLPriorityOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		html      string
		wantURL   string
		wantTitle string
	}{
		{
			name: "og image wins over everything",
			html: pad(`<meta property="og:image" content="https://shop-phinf.pstatic.net/og.jpg">
				<meta property="og:title" content="겨울 담요">
				<img alt="대표이미지" src="https://shop-phinf.pstatic.net/rep.jpg">`),
			wantURL:   "https://shop-phinf.pstatic.net/og.jpg",
			wantTitle: "겨울 담요",
		},
		{
			name: "og image with reversed attribute order",
			html: pad(`<meta content="https://shop-phinf.pstatic.net/rev.jpg" property="og:image">`),
			wantURL: "https://shop-phinf.pstatic.net/rev.jpg",
		},
		{
			name: "representative image when og missing",
			html: pad(`<img alt="대표이미지" src="https://shop-phinf.pstatic.net/rep.jpg">
				<script>{"imageUrl":"https://shop-phinf.pstatic.net/json.jpg"}</script>`),
			wantURL: "https://shop-phinf.pstatic.net/rep.jpg",
		},
		{
			name:    "cdn url in markup attribute",
			html:    pad(`<img class="thumb" src="https://shop-phinf.pstatic.net/20240101/item.png?type=w860">`),
			wantURL: "https://shop-phinf.pstatic.net/20240101/item.png?type=w860",
		},
		{
			name:    "escaped json field is unescaped",
			html:    pad(`<script>{"imageUrl":"https:\/\/shop-phinf.pstatic.net\/esc.jpg"}</script>`),
			wantURL: "https://shop-phinf.pstatic.net/esc.jpg",
		},
		{
			name: "json candidate filtered by exclusion list",
			html: pad(`<script>{"imageUrl":"https://shop-phinf.pstatic.net/logo_small.jpg"}
				{"thumbUrl":"https://shop-phinf.pstatic.net/real.jpg"}</script>`),
			wantURL: "https://shop-phinf.pstatic.net/real.jpg",
		},
		{
			name:    "vendor-only json field rejected on foreign host",
			html:    pad(`<script>{"imageUrl":"https://cdn.example.com/item.jpg"}</script>`),
			wantURL: "",
		},
		{
			name:    "generic image field accepted on foreign host",
			html:    pad(`<script>{"image":"https://cdn.example.com/item.jpg"}</script>`),
			wantURL: "https://cdn.example.com/item.jpg",
		},
		{
			name:    "broad pstatic fallback",
			html:    pad(`<img class="lazy" src="https://img.pstatic.net/fallback/item.webp">`),
			wantURL: "https://img.pstatic.net/fallback/item.webp",
		},
		{
			name:    "generic data-src for brand sites",
			html:    pad(`<img data-src="https://brand.example.com/product/main.jpg?v=2">`),
			wantURL: "https://brand.example.com/product/main.jpg?v=2",
		},
		{
			name:      "title survives when no image found",
			html:      pad(`<meta property="og:title" content="무선 청소기">`),
			wantURL:   "",
			wantTitle: "무선 청소기",
		},
		{
			name:    "relative og image rejected",
			html:    pad(`<meta property="og:image" content="/static/item.jpg">`),
			wantURL: "",
		},
		{
			name:    "blocked page yields nothing",
			html:    pad(`현재 서비스 접속이 불가합니다 <meta property="og:image" content="https://shop-phinf.pstatic.net/og.jpg">`),
			wantURL: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FromHTML(tc.html)
			assert.Equal(t, tc.wantURL, got.URL)
			if tc.wantTitle != "" {
				assert.Equal(t, tc.wantTitle, got.Title)
			}
		})
	}
}
