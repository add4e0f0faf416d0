package social

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Schedule item statuses.
const (
	SchedulePending = "pending"
	SchedulePosted  = "posted"
	ScheduleFailed  = "failed"
)

// ScheduleItem is one queued post. ScheduledAt is an ISO datetime string;
// naive values are interpreted in local time.
type ScheduleItem struct {
	ID           string   `json:"id"`
	ConnectionID string   `json:"connection_id"`
	Caption      string   `json:"caption"`
	ImageURL     string   `json:"image_url,omitempty"`
	VideoURL     string   `json:"video_url,omitempty"`
	Idea         string   `json:"idea,omitempty"`
	ScheduledAt  string   `json:"scheduled_at"`
	Status       string   `json:"status"`
	CreatedAt    float64  `json:"created_at"`
	PostedAt     *float64 `json:"posted_at"`
	Error        string   `json:"error,omitempty"`
	PostID       string   `json:"post_id,omitempty"`
}

// ScheduleStore persists scheduled posts to a JSON file.
type ScheduleStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewScheduleStore builds a store backed by the file at path.
func NewScheduleStore(path string) *ScheduleStore {
	return &ScheduleStore{path: path, now: time.Now}
}

type scheduleFile struct {
	Items []ScheduleItem `json:"items"`
}

func (s *ScheduleStore) load() []ScheduleItem {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var f scheduleFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f.Items
}

func (s *ScheduleStore) save(items []ScheduleItem) error {
	if items == nil {
		items = []ScheduleItem{}
	}
	raw, err := json.MarshalIndent(scheduleFile{Items: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

// List returns schedule items, pending-only unless includePosted is set.
func (s *ScheduleStore) List(includePosted bool) []ScheduleItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	if includePosted {
		return items
	}
	pending := make([]ScheduleItem, 0, len(items))
	for _, it := range items {
		if it.Status == SchedulePending {
			pending = append(pending, it)
		}
	}
	return pending
}

// Add queues a new item and returns it with id and timestamps filled in.
func (s *ScheduleStore) Add(item ScheduleItem) (ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	now := s.now()
	item.ID = fmt.Sprintf("%d_%d", now.UnixMilli(), len(items))
	item.Status = SchedulePending
	item.CreatedAt = float64(now.UnixMilli()) / 1000
	item.PostedAt = nil
	item.Error = ""
	items = append(items, item)
	if err := s.save(items); err != nil {
		return ScheduleItem{}, err
	}
	return item, nil
}

// Delete removes one item by id.
func (s *ScheduleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return fmt.Errorf("schedule item %s: %w", id, ErrNotFound)
	}
	return s.save(kept)
}

// Due returns pending items whose scheduled time has passed. Items with
// unparseable times are left alone.
func (s *ScheduleStore) Due(now time.Time) []ScheduleItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []ScheduleItem
	for _, it := range s.load() {
		if it.Status != SchedulePending || it.ScheduledAt == "" {
			continue
		}
		at, err := parseScheduledAt(it.ScheduledAt)
		if err != nil {
			continue
		}
		if !at.After(now) {
			due = append(due, it)
		}
	}
	return due
}

// MarkPosted records a successful publish.
func (s *ScheduleStore) MarkPosted(id, postID string) error {
	return s.finish(id, func(it *ScheduleItem) {
		it.Status = SchedulePosted
		it.PostID = postID
	})
}

// MarkFailed records a failed publish.
func (s *ScheduleStore) MarkFailed(id, errMsg string) error {
	return s.finish(id, func(it *ScheduleItem) {
		it.Status = ScheduleFailed
		it.Error = errMsg
	})
}

func (s *ScheduleStore) finish(id string, apply func(*ScheduleItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	for i := range items {
		if items[i].ID != id {
			continue
		}
		apply(&items[i])
		ts := float64(s.now().UnixMilli()) / 1000
		items[i].PostedAt = &ts
		return s.save(items)
	}
	return fmt.Errorf("schedule item %s: %w", id, ErrNotFound)
}

// parseScheduledAt accepts RFC 3339, zone-less ISO, and space-separated
// datetime strings.
func parseScheduledAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", raw, time.Local)
}

// Poller publishes due schedule items on a fixed interval. A failing cycle
// is logged and the loop keeps running.
type Poller struct {
	schedule    *ScheduleStore
	connections *ConnectionStore
	publisher   Publisher
	interval    time.Duration
	logger      *zap.Logger
}

// NewPoller builds the scheduler loop.
func NewPoller(schedule *ScheduleStore, connections *ConnectionStore, publisher Publisher, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		schedule:    schedule,
		connections: connections,
		publisher:   publisher,
		interval:    interval,
		logger:      logger,
	}
}

// Run blocks until ctx is canceled, publishing due items every interval.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.publishDue(ctx, now)
		}
	}
}

func (p *Poller) publishDue(ctx context.Context, now time.Time) {
	for _, item := range p.schedule.Due(now) {
		if item.ConnectionID == "" || item.Caption == "" {
			p.markFailed(item.ID, "connection_id or caption missing")
			continue
		}
		conn, err := p.connections.Get(item.ConnectionID)
		if err != nil {
			p.markFailed(item.ID, "연동 계정을 찾을 수 없습니다.")
			continue
		}
		postID, err := p.publisher.Publish(ctx, conn, Post{
			Caption:  item.Caption,
			ImageURL: item.ImageURL,
			VideoURL: item.VideoURL,
		})
		if err != nil {
			p.logger.Warn("scheduled publish failed",
				zap.String("item_id", item.ID),
				zap.String("platform", conn.Platform),
				zap.Error(err))
			p.markFailed(item.ID, err.Error())
			continue
		}
		p.logger.Info("scheduled post published",
			zap.String("item_id", item.ID),
			zap.String("platform", conn.Platform),
			zap.String("post_id", postID))
		if err := p.schedule.MarkPosted(item.ID, postID); err != nil {
			p.logger.Warn("mark posted failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
}

func (p *Poller) markFailed(id, msg string) {
	if err := p.schedule.MarkFailed(id, msg); err != nil {
		p.logger.Warn("mark failed failed", zap.String("item_id", id), zap.Error(err))
	}
}

// SuggestedTime is one recommended publish slot.
type SuggestedTime struct {
	Datetime string `json:"datetime"`
	Label    string `json:"label"`
}

// SuggestedTimes returns tomorrow's high-engagement slots (Korean audience
// heuristic) plus the reason string shown to the user.
func SuggestedTimes(now time.Time, connectionName string) ([]SuggestedTime, string) {
	slots := []struct{ at, label string }{
		{"07:00", "아침 출근 시간대"},
		{"12:00", "점심 시간"},
		{"19:00", "저녁 퇴근 후"},
	}
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	suggested := make([]SuggestedTime, 0, len(slots))
	for _, s := range slots {
		suggested = append(suggested, SuggestedTime{
			Datetime: tomorrow + "T" + s.at + ":00",
			Label:    s.label,
		})
	}
	reason := "일반적으로 참여가 높은 시간대입니다. 연동 계정 성과 데이터가 쌓이면 맞춤 추천을 제공할 예정입니다."
	if connectionName != "" {
		reason = fmt.Sprintf("'%s' 기준으로 추천합니다. (현재는 기본 휴리스틱이며, 데이터가 쌓이면 더 정확해집니다.)", connectionName)
	}
	return suggested, reason
}
