package jobs

import "strings"

// BuildMockSVG renders the deterministic placeholder thumbnail used when a
// job arrives without usable AI credentials. Output is a raw SVG document
// embedded directly in a data URL (no base64) to stay small and diffable.
func BuildMockSVG(productURL string) string {
	safe := strings.TrimSpace(productURL)
	safe = strings.ReplaceAll(safe, "&", "&amp;")
	safe = strings.ReplaceAll(safe, "<", "&lt;")
	safe = strings.ReplaceAll(safe, ">", "&gt;")
	if r := []rune(safe); len(r) > 64 {
		safe = string(r[:61]) + "..."
	}
	return "<svg xmlns='http://www.w3.org/2000/svg' width='1024' height='1024'>" +
		"<defs>" +
		"<linearGradient id='g' x1='0' y1='0' x2='1' y2='1'>" +
		"<stop offset='0' stop-color='#0ea5e9'/>" +
		"<stop offset='1' stop-color='#a855f7'/>" +
		"</linearGradient>" +
		"</defs>" +
		"<rect width='1024' height='1024' fill='url(#g)'/>" +
		"<rect x='72' y='72' width='880' height='880' rx='48' fill='rgba(255,255,255,0.92)'/>" +
		"<text x='120' y='190' font-family='Pretendard, sans-serif' font-size='44' font-weight='700' fill='#111827'>" +
		"WavaA Shopping Thumbnail (Mock)" +
		"</text>" +
		"<text x='120' y='260' font-family='Pretendard, sans-serif' font-size='28' fill='#374151'>" +
		"Backend pipeline will be connected next." +
		"</text>" +
		"<rect x='120' y='330' width='784' height='452' rx='32' fill='#f3f4f6'/>" +
		"<text x='512' y='560' text-anchor='middle' font-family='Pretendard, sans-serif' font-size='34' fill='#6b7280'>" +
		"상품 이미지 영역" +
		"</text>" +
		"<rect x='120' y='822' width='784' height='86' rx='24' fill='#111827'/>" +
		"<text x='160' y='877' font-family='Pretendard, sans-serif' font-size='26' fill='white'>" +
		"입력 링크:" +
		"</text>" +
		"<text x='260' y='877' font-family='Pretendard, sans-serif' font-size='26' fill='white'>" +
		safe +
		"</text>" +
		"</svg>"
}
