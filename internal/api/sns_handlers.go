package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/social"
)

func (s *Server) listConnections(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"connections": s.deps.Connections.ListPublic(),
	})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connection_id")
	if err := s.deps.Connections.Disconnect(id); err != nil {
		s.writeError(w, http.StatusNotFound, "connection_not_found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type postNowRequest struct {
	ConnectionID string `json:"connection_id"`
	Caption      string `json:"caption"`
	ImageURL     string `json:"image_url"`
	VideoURL     string `json:"video_url"`
}

// postNow publishes immediately to one connected account.
func (s *Server) postNow(w http.ResponseWriter, r *http.Request) {
	var req postNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ConnectionID == "" || req.Caption == "" {
		s.writeError(w, http.StatusBadRequest, "connection_id와 caption은 필수입니다.")
		return
	}
	conn, err := s.deps.Connections.Get(req.ConnectionID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "연동 계정을 찾을 수 없습니다.")
		return
	}
	postID, err := s.deps.Publisher.Publish(r.Context(), conn, social.Post{
		Caption:  req.Caption,
		ImageURL: req.ImageURL,
		VideoURL: req.VideoURL,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "post_id": postID})
}

func (s *Server) authFacebook(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.deps.OAuth.FacebookAuthURL(baseURL(r)+"/api/sns/callback/facebook", "")
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (s *Server) callbackFacebook(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, "facebook", func(code string) (social.ExchangeResult, error) {
		return s.deps.OAuth.ExchangeFacebookCode(r.Context(), code, baseURL(r)+"/api/sns/callback/facebook")
	})
}

func (s *Server) authThreads(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.deps.OAuth.ThreadsAuthURL(baseURL(r) + "/api/sns/callback/threads")
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (s *Server) callbackThreads(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, "threads", func(code string) (social.ExchangeResult, error) {
		return s.deps.OAuth.ExchangeThreadsCode(r.Context(), code, baseURL(r)+"/api/sns/callback/threads")
	})
}

func (s *Server) authYouTube(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.deps.OAuth.YouTubeAuthURL(baseURL(r)+"/api/sns/callback/youtube", "")
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (s *Server) callbackYouTube(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, "youtube", func(code string) (social.ExchangeResult, error) {
		return s.deps.OAuth.ExchangeYouTubeCode(r.Context(), code, baseURL(r)+"/api/sns/callback/youtube")
	})
}

// handleCallback finishes an OAuth round trip and bounces the browser back to
// the frontend settings panel with the outcome in the query string.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request, platform string, exchange func(code string) (social.ExchangeResult, error)) {
	front := baseURL(r)
	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" || q.Get("code") == "" {
		if errMsg == "" {
			errMsg = "code missing"
		}
		http.Redirect(w, r, front+"/?sns_error="+url.QueryEscape(errMsg)+"#settings", http.StatusTemporaryRedirect)
		return
	}
	res, err := exchange(q.Get("code"))
	if err != nil {
		s.logger.Warn("oauth exchange failed", zap.String("platform", platform), zap.Error(err))
		http.Redirect(w, r, front+"/?sns_error="+url.QueryEscape(err.Error())+"#settings", http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r,
		front+"/?sns_connected="+platform+"&name="+url.QueryEscape(res.Name)+"#settings",
		http.StatusTemporaryRedirect)
}

func (s *Server) listSchedule(w http.ResponseWriter, r *http.Request) {
	includePosted := r.URL.Query().Get("include_posted") == "true"
	items := s.deps.Schedule.List(includePosted)
	if items == nil {
		items = []social.ScheduleItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type addScheduleRequest struct {
	ConnectionID string `json:"connection_id"`
	Caption      string `json:"caption"`
	ScheduledAt  string `json:"scheduled_at"`
	ImageURL     string `json:"image_url"`
	VideoURL     string `json:"video_url"`
	Idea         string `json:"idea"`
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) {
	var req addScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ConnectionID == "" || req.Caption == "" || req.ScheduledAt == "" {
		s.writeError(w, http.StatusBadRequest, "connection_id, caption, scheduled_at은 필수입니다.")
		return
	}
	item, err := s.deps.Schedule.Add(social.ScheduleItem{
		ConnectionID: req.ConnectionID,
		Caption:      req.Caption,
		ScheduledAt:  req.ScheduledAt,
		ImageURL:     req.ImageURL,
		VideoURL:     req.VideoURL,
		Idea:         req.Idea,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	if err := s.deps.Schedule.Delete(id); err != nil {
		if errors.Is(err, social.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "schedule_not_found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) suggestedTimes(w http.ResponseWriter, r *http.Request) {
	name := ""
	notFound := false
	if id := r.URL.Query().Get("connection_id"); id != "" {
		conn, err := s.deps.Connections.Get(id)
		if err != nil {
			notFound = true
		} else {
			name = strings.TrimSpace(conn.Name)
			if name == "" {
				name = conn.Platform
			}
		}
	}
	suggested, reason := social.SuggestedTimes(time.Now(), name)
	if notFound {
		reason = "선택한 계정을 찾을 수 없어 기본 추천을 표시합니다."
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggested": suggested, "reason": reason})
}

// baseURL reconstructs the externally visible origin, honoring the proxy
// protocol header.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
