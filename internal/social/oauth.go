package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// facebookScopes is everything page and Instagram publishing needs.
const facebookScopes = "pages_show_list,pages_read_engagement,pages_manage_posts,pages_messaging,read_insights,instagram_basic,instagram_content_publish,instagram_manage_insights"

const (
	threadsScopes = "threads_basic,threads_content_publish"
	googleScopes  = "https://www.googleapis.com/auth/youtube.upload https://www.googleapis.com/auth/youtube.readonly"
)

// AppCredentials is one OAuth app registration.
type AppCredentials struct {
	ID     string
	Secret string
}

func (c AppCredentials) complete() bool { return c.ID != "" && c.Secret != "" }

// OAuthConfig carries the per-platform app registrations.
type OAuthConfig struct {
	Facebook AppCredentials
	Threads  AppCredentials
	Google   AppCredentials
	Client   *http.Client
}

// OAuth links SNS accounts: it builds authorization redirect URLs and
// exchanges callback codes for tokens, storing the resulting connections.
type OAuth struct {
	cfg    OAuthConfig
	store  *ConnectionStore
	client *http.Client
	logger *zap.Logger

	// Endpoint bases, swappable in tests.
	fbGraph      string
	fbOAuth      string
	threadsOAuth string
	threadsToken string
	threadsGraph string
	googleAuth   string
	googleToken  string
	youtubeAPI   string
}

// NewOAuth builds the OAuth helper.
func NewOAuth(cfg OAuthConfig, store *ConnectionStore, logger *zap.Logger) *OAuth {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuth{
		cfg:          cfg,
		store:        store,
		client:       client,
		logger:       logger,
		fbGraph:      "https://graph.facebook.com/v21.0",
		fbOAuth:      "https://www.facebook.com/v21.0/dialog/oauth",
		threadsOAuth: "https://threads.net/oauth/authorize",
		threadsToken: "https://graph.threads.net/oauth/access_token",
		threadsGraph: "https://graph.threads.net/v1.0",
		googleAuth:   "https://accounts.google.com/o/oauth2/v2/auth",
		googleToken:  "https://oauth2.googleapis.com/token",
		youtubeAPI:   "https://www.googleapis.com/youtube/v3",
	}
}

// ExchangeResult summarizes the accounts a code exchange linked.
type ExchangeResult struct {
	Name  string
	Added []string
}

// FacebookAuthURL builds the dialog URL the client should be redirected to.
func (o *OAuth) FacebookAuthURL(redirectURI, state string) (string, error) {
	if o.cfg.Facebook.ID == "" {
		return "", fmt.Errorf("FACEBOOK_APP_ID를 설정해주세요. (Meta 앱 대시보드에서 발급)")
	}
	q := url.Values{}
	q.Set("client_id", o.cfg.Facebook.ID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", facebookScopes)
	q.Set("response_type", "code")
	if state != "" {
		q.Set("state", state)
	}
	return o.fbOAuth + "?" + q.Encode(), nil
}

// ExchangeFacebookCode turns a callback code into page (and attached
// Instagram business account) connections: code to short-lived user token,
// short to long-lived, then the page list with per-page tokens.
func (o *OAuth) ExchangeFacebookCode(ctx context.Context, code, redirectURI string) (ExchangeResult, error) {
	if !o.cfg.Facebook.complete() {
		return ExchangeResult{}, fmt.Errorf("FACEBOOK_APP_ID 또는 FACEBOOK_APP_SECRET이 설정되지 않았습니다")
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	q := url.Values{}
	q.Set("client_id", o.cfg.Facebook.ID)
	q.Set("client_secret", o.cfg.Facebook.Secret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)
	if err := o.getJSON(ctx, o.fbGraph+"/oauth/access_token?"+q.Encode(), "", &tok); err != nil {
		return ExchangeResult{}, fmt.Errorf("facebook token exchange: %w", err)
	}
	userToken := tok.AccessToken

	// Long-lived token; fall back to the short one when the upgrade fails.
	q = url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", o.cfg.Facebook.ID)
	q.Set("client_secret", o.cfg.Facebook.Secret)
	q.Set("fb_exchange_token", userToken)
	var longTok struct {
		AccessToken string `json:"access_token"`
	}
	if err := o.getJSON(ctx, o.fbGraph+"/oauth/access_token?"+q.Encode(), "", &longTok); err == nil && longTok.AccessToken != "" {
		userToken = longTok.AccessToken
	}

	var accounts struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	q = url.Values{}
	q.Set("access_token", userToken)
	q.Set("fields", "id,name,access_token")
	if err := o.getJSON(ctx, o.fbGraph+"/me/accounts?"+q.Encode(), "", &accounts); err != nil {
		return ExchangeResult{}, fmt.Errorf("facebook page list: %w", err)
	}
	if len(accounts.Data) == 0 {
		return ExchangeResult{}, fmt.Errorf("연동 가능한 Facebook 페이지가 없습니다. 페이지 관리자여야 합니다.")
	}

	var conns []Connection
	for _, page := range accounts.Data {
		if page.ID == "" {
			continue
		}
		name := page.Name
		if name == "" {
			name = "Facebook Page"
		}
		conns = append(conns, Connection{
			Platform:    "facebook",
			PageID:      page.ID,
			Name:        name,
			AccessToken: page.AccessToken,
		})
		if ig := o.instagramAccount(ctx, page.ID, page.AccessToken, name); ig != nil {
			conns = append(conns, *ig)
		}
	}

	added, err := o.store.Add(conns...)
	if err != nil {
		return ExchangeResult{}, err
	}
	return exchangeResult(added), nil
}

// instagramAccount looks up the Instagram business account attached to a
// page. Missing or unreadable accounts are skipped; this is best-effort.
func (o *OAuth) instagramAccount(ctx context.Context, pageID, pageToken, pageName string) *Connection {
	var detail struct {
		InstagramBusinessAccount *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	q := url.Values{}
	q.Set("access_token", pageToken)
	q.Set("fields", "instagram_business_account")
	if err := o.getJSON(ctx, o.fbGraph+"/"+pageID+"?"+q.Encode(), "", &detail); err != nil {
		return nil
	}
	if detail.InstagramBusinessAccount == nil || detail.InstagramBusinessAccount.ID == "" {
		return nil
	}
	igID := detail.InstagramBusinessAccount.ID

	name := pageName + " (IG)"
	var profile struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	q = url.Values{}
	q.Set("access_token", pageToken)
	q.Set("fields", "username,name")
	if err := o.getJSON(ctx, o.fbGraph+"/"+igID+"?"+q.Encode(), "", &profile); err == nil {
		if profile.Username != "" {
			name = profile.Username
		} else if profile.Name != "" {
			name = profile.Name
		}
	}
	return &Connection{
		Platform:    "instagram",
		IGUserID:    igID,
		PageID:      pageID,
		Name:        name,
		AccessToken: pageToken,
	}
}

// ThreadsAuthURL builds the Threads authorization URL.
func (o *OAuth) ThreadsAuthURL(redirectURI string) (string, error) {
	if o.cfg.Threads.ID == "" {
		return "", fmt.Errorf("THREADS_APP_ID를 설정해주세요. (Meta 앱 대시보드에서 Threads API 사용 설정)")
	}
	q := url.Values{}
	q.Set("client_id", o.cfg.Threads.ID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", threadsScopes)
	q.Set("response_type", "code")
	return o.threadsOAuth + "?" + q.Encode(), nil
}

// ExchangeThreadsCode exchanges a Threads callback code and stores the
// connection. Meta appends "#_" to callback codes; everything from the first
// "#" is stripped before the exchange.
func (o *OAuth) ExchangeThreadsCode(ctx context.Context, code, redirectURI string) (ExchangeResult, error) {
	if !o.cfg.Threads.complete() {
		return ExchangeResult{}, fmt.Errorf("THREADS_APP_ID 또는 THREADS_APP_SECRET이 설정되지 않았습니다")
	}
	code, _, _ = strings.Cut(strings.TrimSpace(code), "#")

	form := url.Values{}
	form.Set("client_id", o.cfg.Threads.ID)
	form.Set("client_secret", o.cfg.Threads.Secret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)
	var tok struct {
		AccessToken string          `json:"access_token"`
		UserID      json.RawMessage `json:"user_id"`
	}
	if err := o.postForm(ctx, o.threadsToken, form, &tok); err != nil {
		return ExchangeResult{}, fmt.Errorf("threads token exchange: %w", err)
	}
	userID := rawID(tok.UserID)
	if tok.AccessToken == "" || userID == "" {
		return ExchangeResult{}, fmt.Errorf("threads token response missing access_token or user_id")
	}

	name := "Threads (" + userID + ")"
	var profile struct {
		Username string `json:"username"`
	}
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("fields", "username")
	if err := o.getJSON(ctx, o.threadsGraph+"/"+userID+"?"+q.Encode(), "", &profile); err == nil && strings.TrimSpace(profile.Username) != "" {
		name = strings.TrimSpace(profile.Username)
	}

	added, err := o.store.Add(Connection{
		Platform:      "threads",
		ThreadsUserID: userID,
		Name:          name,
		AccessToken:   tok.AccessToken,
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	if len(added) == 0 {
		return ExchangeResult{}, fmt.Errorf("이미 연동된 Threads 계정입니다.")
	}
	return exchangeResult(added), nil
}

// YouTubeAuthURL builds the Google consent URL with offline access so a
// refresh token comes back.
func (o *OAuth) YouTubeAuthURL(redirectURI, state string) (string, error) {
	if o.cfg.Google.ID == "" {
		return "", fmt.Errorf("GOOGLE_CLIENT_ID를 설정해주세요. (Google Cloud Console에서 YouTube API 사용 설정)")
	}
	q := url.Values{}
	q.Set("client_id", o.cfg.Google.ID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", googleScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return o.googleAuth + "?" + q.Encode(), nil
}

// ExchangeYouTubeCode exchanges a Google callback code and stores the channel
// connection.
func (o *OAuth) ExchangeYouTubeCode(ctx context.Context, code, redirectURI string) (ExchangeResult, error) {
	if !o.cfg.Google.complete() {
		return ExchangeResult{}, fmt.Errorf("GOOGLE_CLIENT_ID 또는 GOOGLE_CLIENT_SECRET이 설정되지 않았습니다")
	}
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", o.cfg.Google.ID)
	form.Set("client_secret", o.cfg.Google.Secret)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")
	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := o.postForm(ctx, o.googleToken, form, &tok); err != nil {
		return ExchangeResult{}, fmt.Errorf("youtube token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return ExchangeResult{}, fmt.Errorf("youtube token response missing access_token")
	}

	channelID, name := "unknown", "YouTube"
	var channels struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := o.getJSON(ctx, o.youtubeAPI+"/channels?part=snippet&mine=true", tok.AccessToken, &channels); err == nil && len(channels.Items) > 0 {
		ch := channels.Items[0]
		if ch.ID != "" {
			channelID = ch.ID
		}
		if t := strings.TrimSpace(ch.Snippet.Title); t != "" {
			name = t
		}
	}

	added, err := o.store.Add(Connection{
		Platform:         "youtube",
		YouTubeChannelID: channelID,
		Name:             name,
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	if len(added) == 0 {
		return ExchangeResult{}, fmt.Errorf("이미 연동된 YouTube 채널입니다.")
	}
	return exchangeResult(added), nil
}

// RefreshYouTubeToken trades a refresh token for a fresh access token.
func (o *OAuth) RefreshYouTubeToken(ctx context.Context, refreshToken string) (string, error) {
	if !o.cfg.Google.complete() {
		return "", fmt.Errorf("GOOGLE_CLIENT_ID 또는 GOOGLE_CLIENT_SECRET이 설정되지 않았습니다")
	}
	if refreshToken == "" {
		return "", fmt.Errorf("refresh token missing")
	}
	form := url.Values{}
	form.Set("client_id", o.cfg.Google.ID)
	form.Set("client_secret", o.cfg.Google.Secret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := o.postForm(ctx, o.googleToken, form, &tok); err != nil {
		return "", fmt.Errorf("youtube token refresh: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("youtube refresh response missing access_token")
	}
	return tok.AccessToken, nil
}

func exchangeResult(added []Connection) ExchangeResult {
	res := ExchangeResult{}
	for _, c := range added {
		res.Added = append(res.Added, c.Name)
	}
	switch len(added) {
	case 0:
	case 1:
		res.Name = added[0].Name
	default:
		res.Name = fmt.Sprintf("%d개 계정", len(added))
	}
	return res
}

func (o *OAuth) getJSON(ctx context.Context, rawURL, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return o.doJSON(req, out)
}

func (o *OAuth) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return o.doJSON(req, out)
}

func (o *OAuth) doJSON(req *http.Request, out any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// rawID renders a JSON id that may arrive as either a string or a number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
