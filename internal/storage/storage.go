package storage

import (
	"errors"
	"time"

	"zontact/backend/internal/domain"
)

var (
	// ErrSubmissionNotFound 留言不存在错误
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrNoEntries 导出时没有可导出的留言
	ErrNoEntries = errors.New("no entries to export")
)

// MaxPerPage 列表查询单页条数硬上限，与调用方请求无关
const MaxPerPage = 30

// ListQuery 列表查询参数。
//
// Search 非空时对 name/email/message 做大小写不敏感的子串匹配（逻辑 OR）。
type ListQuery struct {
	Page    int    // 1 起始，非法值按 1 处理
	PerPage int    // 实际生效值被硬上限 MaxPerPage 截断
	Search  string // 可选搜索串
}

// Normalize 规范化分页参数
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = MaxPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// Offset 返回查询偏移量
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// SubmissionRepository 定义留言数据存取操作。
type SubmissionRepository interface {
	// InsertSubmission 插入留言并回填生成的 ID
	InsertSubmission(sub *domain.Submission) error
	// UpdateEmailStatus 单次更新邮件投递状态。
	// status = sent 时写入 sentAt；status = failed 时写入 emailErr。
	UpdateEmailStatus(id int64, status domain.EmailStatus, emailErr *string, sentAt *time.Time) error
	// ListSubmissions 按 ID 倒序（最新在前）返回一页留言
	ListSubmissions(q ListQuery) ([]domain.Submission, error)
	// CountSubmissions 返回匹配搜索条件的总条数
	CountSubmissions(search string) (int, error)
	// DeleteSubmissionsByIDs 按 ID 批量删除，返回实际删除条数。
	// ID 会被强制为正整数，空集合为空操作；未知 ID 不报错，只体现在删除数上。
	DeleteSubmissionsByIDs(ids []int64) (int, error)
	// DeleteSubmissionsBefore 删除 cutoff 之前创建的留言（保留期清理）
	DeleteSubmissionsBefore(cutoff time.Time) (int, error)
	// ListAllForExport 返回全表留言（导出用，ID 倒序）
	ListAllForExport() ([]domain.Submission, error)
	// ListByIDsForExport 返回指定 ID 集合的留言（导出用，ID 倒序）
	ListByIDsForExport(ids []int64) ([]domain.Submission, error)
}

// OptionsRepository 定义站点配置存取操作。
type OptionsRepository interface {
	// GetOptions 返回存储的配置覆盖值，尚未保存过时返回 (nil, nil)
	GetOptions() (*domain.Options, error)
	// SaveOptions 保存配置覆盖值（单行 upsert）
	SaveOptions(opts *domain.Options) error
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	SubmissionRepository
	OptionsRepository
	RateLimitRepository

	// 工具方法
	Close() error
	Health() error
}

// SanitizeIDs 将任意 ID 列表强制为去零、去负的正整数集合。
func SanitizeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}
