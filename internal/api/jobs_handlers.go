package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wavaa/thumbforge/internal/jobs"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

type createJobRequest struct {
	URL               string `json:"url"`
	ImageURL          string `json:"image_url"`
	GeminiAPIKey      string `json:"gemini_api_key"`
	ReplicateToken    string `json:"replicate_token"`
	NaverClientID     string `json:"naver_client_id"`
	NaverClientSecret string `json:"naver_client_secret"`
}

func (s *Server) createThumbnailJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	pageURL := strings.TrimSpace(req.URL)
	if imageURL == "" && pageURL == "" {
		s.writeError(w, http.StatusBadRequest, "image_url 또는 url 중 하나는 필수입니다.")
		return
	}
	// The pipeline prefers image_url when both are present.
	effectiveURL := pageURL
	if effectiveURL == "" {
		effectiveURL = imageURL
	}

	job := s.deps.Jobs.Create(effectiveURL, imageURL)
	err := s.deps.Queue.Enqueue(jobs.Item{
		JobID: job.ID,
		Credentials: thumbnail.Credentials{
			GeminiAPIKey:      strings.TrimSpace(req.GeminiAPIKey),
			ReplicateToken:    strings.TrimSpace(req.ReplicateToken),
			NaverClientID:     strings.TrimSpace(req.NaverClientID),
			NaverClientSecret: strings.TrimSpace(req.NaverClientSecret),
		},
	})
	if err != nil {
		if markErr := s.deps.Jobs.Fail(job.ID, "작업 큐가 가득 찼습니다. 잠시 후 다시 시도해주세요."); markErr != nil {
			s.logger.Warn("failed to mark rejected job")
		}
		s.writeError(w, http.StatusServiceUnavailable, "작업 큐가 가득 찼습니다. 잠시 후 다시 시도해주세요.")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": job.ID, "status": string(job.Status)})
}

func (s *Server) getThumbnailJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job_not_found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// getThumbnailResult serves the decoded result bytes so browsers render the
// image from a plain URL instead of a giant base64 JSON field.
func (s *Server) getThumbnailResult(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(chi.URLParam(r, "job_id"))
	if err != nil || job.Status != jobs.StatusCompleted || job.ResultDataURL == "" {
		s.writeError(w, http.StatusNotFound, "result_not_ready")
		return
	}
	_, payload, found := strings.Cut(job.ResultDataURL, ",")
	if !found {
		s.writeError(w, http.StatusInternalServerError, "invalid_result")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Mock SVG results are URL-embedded text, not base64.
		raw = []byte(payload)
	}
	media := "image/svg+xml"
	if strings.Contains(job.ResultDataURL, "image/png") {
		media = "image/png"
	}
	w.Header().Set("Content-Type", media)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write result failed")
	}
}
