package resolve

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// responseSniffer passively records JSON API responses observed while a page
// loads. Bodies are fetched lazily at the end of the session because the CDP
// body call is only valid once the response has fully arrived.
type responseSniffer struct {
	mu  sync.Mutex
	ids []network.RequestID
}

const maxSniffedResponses = 20

func newResponseSniffer(ctx context.Context) *responseSniffer {
	s := &responseSniffer{}
	chromedp.ListenTarget(ctx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil || resp.Response.Status != 200 {
			return
		}
		url := strings.ToLower(resp.Response.URL)
		if !strings.Contains(url, "product") && !strings.Contains(url, "api") && !strings.Contains(url, "graphql") {
			return
		}
		if !strings.Contains(strings.ToLower(resp.Response.MimeType), "json") {
			return
		}
		s.mu.Lock()
		if len(s.ids) < maxSniffedResponses {
			s.ids = append(s.ids, resp.RequestID)
		}
		s.mu.Unlock()
	})
	return s
}

// bodies fetches the recorded response bodies that look image-bearing. Errors
// on individual bodies are skipped; sniffing is best-effort.
func (s *responseSniffer) bodies(ctx context.Context) []string {
	s.mu.Lock()
	ids := append([]network.RequestID(nil), s.ids...)
	s.mu.Unlock()

	var out []string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, id := range ids {
			body, err := network.GetResponseBody(id).Do(ctx)
			if err != nil {
				continue
			}
			text := string(body)
			lower := strings.ToLower(text)
			if strings.Contains(lower, "image") || strings.Contains(text, "shop-phinf") || strings.Contains(text, "phinf") {
				out = append(out, text)
			}
		}
		return nil
	}))
	if err != nil {
		return nil
	}
	return out
}
