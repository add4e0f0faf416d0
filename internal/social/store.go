// Package social manages SNS account connections and scheduled publishing.
// Connections and schedules are persisted as small JSON files so they survive
// restarts without a database.
package social

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound reports a missing connection or schedule item.
var ErrNotFound = errors.New("not found")

// Connection is one linked SNS account. Platform-specific identifiers are
// optional; each platform fills only its own.
type Connection struct {
	ID               string `json:"id"`
	Platform         string `json:"platform"`
	Name             string `json:"name"`
	PageID           string `json:"page_id,omitempty"`
	IGUserID         string `json:"ig_user_id,omitempty"`
	ThreadsUserID    string `json:"threads_user_id,omitempty"`
	YouTubeChannelID string `json:"youtube_channel_id,omitempty"`
	AccessToken      string `json:"access_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
}

// PublicConnection is the token-free view served to clients.
type PublicConnection struct {
	ID               string `json:"id"`
	Platform         string `json:"platform"`
	Name             string `json:"name"`
	PageID           string `json:"page_id,omitempty"`
	IGUserID         string `json:"ig_user_id,omitempty"`
	ThreadsUserID    string `json:"threads_user_id,omitempty"`
	YouTubeChannelID string `json:"youtube_channel_id,omitempty"`
}

// ConnectionStore persists connections to a JSON file.
type ConnectionStore struct {
	mu   sync.Mutex
	path string
}

// NewConnectionStore builds a store backed by the file at path. The file is
// created lazily on first write.
func NewConnectionStore(path string) *ConnectionStore {
	return &ConnectionStore{path: path}
}

type connectionsFile struct {
	Connections []Connection `json:"connections"`
}

// load reads the file, backfilling ids on records written before ids existed.
func (s *ConnectionStore) load() []Connection {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var f connectionsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	for i := range f.Connections {
		if f.Connections[i].ID == "" {
			f.Connections[i].ID = uuid.NewString()
		}
	}
	return f.Connections
}

func (s *ConnectionStore) save(conns []Connection) error {
	if conns == nil {
		conns = []Connection{}
	}
	raw, err := json.MarshalIndent(connectionsFile{Connections: conns}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal connections: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write connections: %w", err)
	}
	return nil
}

// List returns every stored connection, tokens included.
func (s *ConnectionStore) List() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ListPublic returns the token-free view for clients.
func (s *ConnectionStore) ListPublic() []PublicConnection {
	conns := s.List()
	out := make([]PublicConnection, 0, len(conns))
	for _, c := range conns {
		out = append(out, PublicConnection{
			ID:               c.ID,
			Platform:         c.Platform,
			Name:             c.Name,
			PageID:           c.PageID,
			IGUserID:         c.IGUserID,
			ThreadsUserID:    c.ThreadsUserID,
			YouTubeChannelID: c.YouTubeChannelID,
		})
	}
	return out
}

// Get returns the connection with the given id.
func (s *ConnectionStore) Get(id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.load() {
		if c.ID == id {
			return c, nil
		}
	}
	return Connection{}, fmt.Errorf("connection %s: %w", id, ErrNotFound)
}

// Add appends connections, assigning ids to any that lack one, and skipping
// records that duplicate an existing platform account.
func (s *ConnectionStore) Add(conns ...Connection) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.load()
	var added []Connection
	for _, c := range conns {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if hasDuplicate(existing, c) {
			continue
		}
		existing = append(existing, c)
		added = append(added, c)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := s.save(existing); err != nil {
		return nil, err
	}
	return added, nil
}

// hasDuplicate reports whether c points at an account that is already linked.
func hasDuplicate(conns []Connection, c Connection) bool {
	for _, e := range conns {
		if e.Platform != c.Platform {
			continue
		}
		switch c.Platform {
		case "facebook":
			if c.PageID != "" && e.PageID == c.PageID {
				return true
			}
		case "instagram":
			if c.IGUserID != "" && e.IGUserID == c.IGUserID {
				return true
			}
		case "threads":
			if c.ThreadsUserID != "" && e.ThreadsUserID == c.ThreadsUserID {
				return true
			}
		case "youtube":
			if c.YouTubeChannelID != "" && e.YouTubeChannelID == c.YouTubeChannelID {
				return true
			}
		}
	}
	return false
}

// Disconnect removes one connection by id.
func (s *ConnectionStore) Disconnect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.load()
	kept := conns[:0]
	for _, c := range conns {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(conns) {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return s.save(kept)
}

// UpdateTokens refreshes stored tokens after a token refresh round trip.
func (s *ConnectionStore) UpdateTokens(id, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.load()
	for i := range conns {
		if conns[i].ID != id {
			continue
		}
		if accessToken != "" {
			conns[i].AccessToken = accessToken
		}
		if refreshToken != "" {
			conns[i].RefreshToken = refreshToken
		}
		return s.save(conns)
	}
	return fmt.Errorf("connection %s: %w", id, ErrNotFound)
}
