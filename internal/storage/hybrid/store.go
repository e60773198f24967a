package hybrid

import (
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage"
	"zontact/backend/internal/storage/redis"
	sqlstore "zontact/backend/internal/storage/sql"
)

// Store 混合存储实现，结合 SQL 数据库和 Redis。
//
// 列表/计数走 5 分钟读缓存，任何写路径都会使全部读缓存失效；
// 限流计数只走 Redis。
type Store struct {
	db    *sqlstore.Store
	redis *redis.Cache
}

// Options 混合存储初始化参数
type Options struct {
	DriverName      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewStore 创建混合存储实例
func NewStore(opts Options) (*Store, error) {
	db, err := sqlstore.NewStore(
		opts.DriverName,
		opts.DSN,
		opts.MaxOpenConns,
		opts.MaxIdleConns,
		opts.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisCache, err := redis.NewCache(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		db:    db,
		redis: redisCache,
	}, nil
}

// Migrate 幂等地创建/升级数据库表结构
func (s *Store) Migrate() error {
	return s.db.Migrate()
}

// ========== Submission Repository ==========

// InsertSubmission 插入留言并回填生成的 ID
func (s *Store) InsertSubmission(sub *domain.Submission) error {
	if err := s.db.InsertSubmission(sub); err != nil {
		return err
	}

	// 列表已变化，整体失效读缓存
	s.redis.InvalidateEntries()

	// 发布新留言通知（失败不影响主流程）
	s.redis.PublishNewEntry(sub)

	return nil
}

// UpdateEmailStatus 单次更新邮件投递状态
func (s *Store) UpdateEmailStatus(id int64, status domain.EmailStatus, emailErr *string, sentAt *time.Time) error {
	if err := s.db.UpdateEmailStatus(id, status, emailErr, sentAt); err != nil {
		return err
	}

	s.redis.InvalidateEntries()
	return nil
}

// ListSubmissions 按 ID 倒序返回一页留言（带读缓存）
func (s *Store) ListSubmissions(q storage.ListQuery) ([]domain.Submission, error) {
	q = q.Normalize()

	// 先尝试从 Redis 获取
	if subs, err := s.redis.GetCachedSubmissionList(q); err == nil {
		return subs, nil
	}

	subs, err := s.db.ListSubmissions(q)
	if err != nil {
		return nil, err
	}

	// 缓存失败不影响主流程
	s.redis.CacheSubmissionList(q, subs)

	return subs, nil
}

// CountSubmissions 返回匹配搜索条件的总条数（带读缓存）
func (s *Store) CountSubmissions(search string) (int, error) {
	if count, err := s.redis.GetCachedSubmissionCount(search); err == nil {
		return count, nil
	}

	count, err := s.db.CountSubmissions(search)
	if err != nil {
		return 0, err
	}

	s.redis.CacheSubmissionCount(search, count)

	return count, nil
}

// DeleteSubmissionsByIDs 按 ID 批量删除，返回实际删除条数
func (s *Store) DeleteSubmissionsByIDs(ids []int64) (int, error) {
	affected, err := s.db.DeleteSubmissionsByIDs(ids)
	if err != nil {
		return 0, err
	}

	s.redis.InvalidateEntries()
	return affected, nil
}

// DeleteSubmissionsBefore 删除 cutoff 之前创建的留言（保留期清理）
func (s *Store) DeleteSubmissionsBefore(cutoff time.Time) (int, error) {
	affected, err := s.db.DeleteSubmissionsBefore(cutoff)
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		s.redis.InvalidateEntries()
	}
	return affected, nil
}

// ListAllForExport 返回全表留言（导出用，不走缓存）
func (s *Store) ListAllForExport() ([]domain.Submission, error) {
	return s.db.ListAllForExport()
}

// ListByIDsForExport 返回指定 ID 集合的留言（导出用，不走缓存）
func (s *Store) ListByIDsForExport(ids []int64) ([]domain.Submission, error) {
	return s.db.ListByIDsForExport(ids)
}

// ========== Options Repository ==========

// GetOptions 返回存储的配置覆盖值（带读缓存）
func (s *Store) GetOptions() (*domain.Options, error) {
	if opts, err := s.redis.GetCachedOptions(); err == nil {
		return opts, nil
	}

	opts, err := s.db.GetOptions()
	if err != nil {
		return nil, err
	}

	// 尚未保存过配置时不缓存（避免缓存 nil）
	if opts != nil {
		s.redis.CacheOptions(opts)
	}

	return opts, nil
}

// SaveOptions 保存配置覆盖值
func (s *Store) SaveOptions(opts *domain.Options) error {
	if err := s.db.SaveOptions(opts); err != nil {
		return err
	}

	// 写后删缓存，下次读取回源
	s.redis.DeleteCachedOptions()
	return nil
}

// ========== 限流 ==========

// IncrementRateLimit 增加限流计数
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	// 只使用 Redis 进行限流
	return s.redis.IncrementRateLimit(key, window)
}

// GetRateLimit 获取限流计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.redis.GetRateLimit(key)
}

// ========== 发布订阅 ==========

// SubscribeNewEntries 订阅新留言通知
func (s *Store) SubscribeNewEntries() *goredis.PubSub {
	return s.redis.SubscribeNewEntries()
}

// ========== 工具方法 ==========

// Close 关闭存储连接
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	return s.redis.Close()
}

// Health 健康检查
func (s *Store) Health() error {
	if err := s.db.Health(); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	if err := s.redis.Health(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return nil
}
