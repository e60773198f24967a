package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage"
)

// Store 使用内存保存留言与配置数据，主要用于开发验证与测试。
type Store struct {
	mu          sync.RWMutex
	submissions map[int64]*domain.Submission
	nextID      int64
	options     *domain.Options

	// 速率限制相关
	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		submissions:       make(map[int64]*domain.Submission),
		nextID:            1,
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(time.Minute),
	}
}

// InsertSubmission 插入留言并回填生成的 ID
func (s *Store) InsertSubmission(sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.ID = s.nextID
	s.nextID++

	if sub.FormKey == "" {
		sub.FormKey = domain.DefaultFormKey
	}
	if sub.EmailStatus == "" {
		sub.EmailStatus = domain.EmailStatusPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	clone := *sub
	s.submissions[sub.ID] = &clone
	return nil
}

// UpdateEmailStatus 单次更新邮件投递状态
func (s *Store) UpdateEmailStatus(id int64, status domain.EmailStatus, emailErr *string, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return storage.ErrSubmissionNotFound
	}

	sub.EmailStatus = status
	sub.EmailError = nil
	sub.EmailSentAt = nil
	if status == domain.EmailStatusFailed {
		sub.EmailError = emailErr
	}
	if status == domain.EmailStatusSent {
		sub.EmailSentAt = sentAt
	}
	return nil
}

// ListSubmissions 按 ID 倒序返回一页留言
func (s *Store) ListSubmissions(q storage.ListQuery) ([]domain.Submission, error) {
	q = q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(q.Search)
	start := q.Offset()
	if start >= len(matched) {
		return []domain.Submission{}, nil
	}
	end := start + q.PerPage
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]domain.Submission, 0, end-start)
	for _, sub := range matched[start:end] {
		out = append(out, *sub)
	}
	return out, nil
}

// CountSubmissions 返回匹配搜索条件的总条数
func (s *Store) CountSubmissions(search string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchLocked(search)), nil
}

// DeleteSubmissionsByIDs 按 ID 批量删除，返回实际删除条数
func (s *Store) DeleteSubmissionsByIDs(ids []int64) (int, error) {
	ids = storage.SanitizeIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for _, id := range ids {
		if _, ok := s.submissions[id]; ok {
			delete(s.submissions, id)
			affected++
		}
	}
	return affected, nil
}

// DeleteSubmissionsBefore 删除 cutoff 之前创建的留言
func (s *Store) DeleteSubmissionsBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for id, sub := range s.submissions {
		if sub.CreatedAt.Before(cutoff) {
			delete(s.submissions, id)
			affected++
		}
	}
	return affected, nil
}

// ListAllForExport 返回全表留言（ID 倒序）
func (s *Store) ListAllForExport() ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked("")
	out := make([]domain.Submission, 0, len(matched))
	for _, sub := range matched {
		out = append(out, *sub)
	}
	return out, nil
}

// ListByIDsForExport 返回指定 ID 集合的留言（ID 倒序）
func (s *Store) ListByIDsForExport(ids []int64) ([]domain.Submission, error) {
	ids = storage.SanitizeIDs(ids)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Submission, 0, len(ids))
	for _, sub := range s.matchLocked("") {
		for _, id := range ids {
			if sub.ID == id {
				out = append(out, *sub)
				break
			}
		}
	}
	return out, nil
}

// matchLocked 返回匹配搜索串的留言指针切片，按 ID 倒序。
// 调用方必须持有读锁或写锁。
func (s *Store) matchLocked(search string) []*domain.Submission {
	needle := strings.ToLower(strings.TrimSpace(search))

	matched := make([]*domain.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		if needle != "" {
			if !strings.Contains(strings.ToLower(sub.Name), needle) &&
				!strings.Contains(strings.ToLower(sub.Email), needle) &&
				!strings.Contains(strings.ToLower(sub.Message), needle) {
				continue
			}
		}
		matched = append(matched, sub)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})
	return matched
}

// GetOptions 返回存储的配置覆盖值，尚未保存过时返回 (nil, nil)
func (s *Store) GetOptions() (*domain.Options, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.options == nil {
		return nil, nil
	}
	clone := *s.options
	return &clone, nil
}

// SaveOptions 保存配置覆盖值
func (s *Store) SaveOptions(opts *domain.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *opts
	s.options = &clone
	return nil
}

// IncrementRateLimit 增加限流计数
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cleanupRateLimitsLocked(now)

	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 获取限流计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// cleanupRateLimitsLocked 定期清理过期的限流条目。调用方必须持有写锁。
func (s *Store) cleanupRateLimitsLocked(now time.Time) {
	if now.Before(s.rateLimitsCleanup) {
		return
	}
	for key, entry := range s.rateLimits {
		if now.After(entry.ExpiresAt) {
			delete(s.rateLimits, key)
		}
	}
	s.rateLimitsCleanup = now.Add(time.Minute)
}

// Close 关闭存储（内存实现为空操作）
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态
func (s *Store) Health() error {
	return nil
}
