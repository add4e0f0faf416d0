package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Post is one piece of content to publish.
type Post struct {
	Caption  string
	ImageURL string
	VideoURL string
}

// Publisher sends a post to one connected account and returns the platform's
// post id.
type Publisher interface {
	Publish(ctx context.Context, conn Connection, post Post) (string, error)
}

// GraphPublisher posts through the Meta graph endpoints: Facebook page feed,
// Instagram content publishing, and Threads.
type GraphPublisher struct {
	client *http.Client
	logger *zap.Logger

	fbGraph      string
	threadsGraph string
}

// NewGraphPublisher builds the publisher.
func NewGraphPublisher(client *http.Client, logger *zap.Logger) *GraphPublisher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphPublisher{
		client:       client,
		logger:       logger,
		fbGraph:      "https://graph.facebook.com/v21.0",
		threadsGraph: "https://graph.threads.net/v1.0",
	}
}

// Publish dispatches to the platform-specific flow.
func (p *GraphPublisher) Publish(ctx context.Context, conn Connection, post Post) (string, error) {
	if conn.AccessToken == "" {
		return "", fmt.Errorf("토큰이 없습니다.")
	}
	switch conn.Platform {
	case "facebook":
		if conn.PageID == "" {
			return "", fmt.Errorf("페이지 정보가 없습니다.")
		}
		return p.postFacebook(ctx, conn, post)
	case "instagram":
		if conn.IGUserID == "" {
			return "", fmt.Errorf("인스타그램 계정 정보가 없습니다.")
		}
		return p.postInstagram(ctx, conn, post)
	case "threads":
		if conn.ThreadsUserID == "" {
			return "", fmt.Errorf("Threads 계정 정보가 없습니다.")
		}
		return p.postThreads(ctx, conn, post)
	case "youtube":
		return "", fmt.Errorf("YouTube 발행은 공개 접근 가능한 MP4 영상 URL(video_url)이 필요합니다.")
	default:
		return "", fmt.Errorf("지원하지 않는 플랫폼입니다: %s", conn.Platform)
	}
}

func (p *GraphPublisher) postFacebook(ctx context.Context, conn Connection, post Post) (string, error) {
	q := url.Values{}
	q.Set("access_token", conn.AccessToken)
	q.Set("message", post.Caption)
	if strings.HasPrefix(post.ImageURL, "http") {
		q.Set("link", post.ImageURL)
	}
	return p.postForID(ctx, p.fbGraph+"/"+conn.PageID+"/feed", q)
}

// postInstagram runs the two-step content publishing flow: create a media
// container, then publish it.
func (p *GraphPublisher) postInstagram(ctx context.Context, conn Connection, post Post) (string, error) {
	if !strings.HasPrefix(post.ImageURL, "http") {
		return "", fmt.Errorf("인스타그램 피드 게시에는 공개 접근 가능한 이미지 URL이 필요합니다.")
	}
	caption := post.Caption
	if len(caption) > 2200 {
		caption = caption[:2200]
	}
	q := url.Values{}
	q.Set("access_token", conn.AccessToken)
	q.Set("image_url", post.ImageURL)
	q.Set("caption", caption)
	creationID, err := p.postForID(ctx, p.fbGraph+"/"+conn.IGUserID+"/media", q)
	if err != nil {
		return "", err
	}
	if creationID == "" {
		return "", fmt.Errorf("미디어 생성 ID를 받지 못했습니다.")
	}
	q = url.Values{}
	q.Set("access_token", conn.AccessToken)
	q.Set("creation_id", creationID)
	return p.postForID(ctx, p.fbGraph+"/"+conn.IGUserID+"/media_publish", q)
}

// postThreads creates a threads container then publishes it. Text posts go
// through the same flow with media_type TEXT.
func (p *GraphPublisher) postThreads(ctx context.Context, conn Connection, post Post) (string, error) {
	text := post.Caption
	if len(text) > 500 {
		text = text[:500]
	}
	q := url.Values{}
	q.Set("access_token", conn.AccessToken)
	q.Set("text", text)
	if strings.HasPrefix(post.ImageURL, "http") {
		q.Set("media_type", "IMAGE")
		q.Set("image_url", post.ImageURL)
	} else {
		q.Set("media_type", "TEXT")
	}
	creationID, err := p.postForID(ctx, p.threadsGraph+"/"+conn.ThreadsUserID+"/threads", q)
	if err != nil {
		return "", err
	}
	if creationID == "" {
		return "", fmt.Errorf("creation id missing in threads response")
	}
	q = url.Values{}
	q.Set("access_token", conn.AccessToken)
	q.Set("creation_id", creationID)
	return p.postForID(ctx, p.threadsGraph+"/"+conn.ThreadsUserID+"/threads_publish", q)
}

// postForID POSTs with query parameters, graph style, and returns the id
// field of the JSON response. Graph errors surface their message text.
func (p *GraphPublisher) postForID(ctx context.Context, rawURL string, q url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	dec := json.NewDecoder(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if err := dec.Decode(&body); err == nil && body.Error.Message != "" {
			return "", fmt.Errorf("%s", body.Error.Message)
		}
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := dec.Decode(&body); err != nil {
		return "", fmt.Errorf("decode graph response: %w", err)
	}
	return body.ID, nil
}
