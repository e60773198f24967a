package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage"
)

// ListCacheTTL 列表/计数缓存有效期
const ListCacheTTL = 5 * time.Minute

// OptionsCacheTTL 站点配置缓存有效期
const OptionsCacheTTL = 5 * time.Minute

// Cache Redis 缓存实现
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 留言列表缓存 ==========
//
// 缓存键携带一个代数计数器：任何写操作只需 INCR 代数键，
// 旧代的全部分页/计数缓存即整体失效，无需逐键删除。

const generationKey = "entries:generation"

// generation 返回当前缓存代数，键不存在时视为 0
func (c *Cache) generation() int64 {
	gen, err := c.client.Get(c.ctx, generationKey).Int64()
	if err != nil {
		return 0
	}
	return gen
}

// InvalidateEntries 使全部留言列表/计数缓存失效
func (c *Cache) InvalidateEntries() error {
	return c.client.Incr(c.ctx, generationKey).Err()
}

// listKey 构造分页缓存键（搜索串散列后编入键名）
func (c *Cache) listKey(q storage.ListQuery) string {
	return fmt.Sprintf("entries:%d:page:%d:%d:%s", c.generation(), q.Page, q.PerPage, hashSearch(q.Search))
}

// countKey 构造计数缓存键
func (c *Cache) countKey(search string) string {
	return fmt.Sprintf("entries:%d:count:%s", c.generation(), hashSearch(search))
}

// CacheSubmissionList 缓存一页留言
func (c *Cache) CacheSubmissionList(q storage.ListQuery, subs []domain.Submission) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, c.listKey(q), data, ListCacheTTL).Err()
}

// GetCachedSubmissionList 获取缓存的一页留言
func (c *Cache) GetCachedSubmissionList(q storage.ListQuery) ([]domain.Submission, error) {
	data, err := c.client.Get(c.ctx, c.listKey(q)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("submission list not found in cache")
		}
		return nil, err
	}

	var subs []domain.Submission
	if err := json.Unmarshal([]byte(data), &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// CacheSubmissionCount 缓存留言总数
func (c *Cache) CacheSubmissionCount(search string, count int) error {
	return c.client.Set(c.ctx, c.countKey(search), count, ListCacheTTL).Err()
}

// GetCachedSubmissionCount 获取缓存的留言总数
func (c *Cache) GetCachedSubmissionCount(search string) (int, error) {
	count, err := c.client.Get(c.ctx, c.countKey(search)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("submission count not found in cache")
		}
		return 0, err
	}
	return count, nil
}

// ========== 站点配置缓存 ==========

const optionsKey = "options:site"

// CacheOptions 缓存站点配置
func (c *Cache) CacheOptions(opts *domain.Options) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, optionsKey, data, OptionsCacheTTL).Err()
}

// GetCachedOptions 获取缓存的站点配置
func (c *Cache) GetCachedOptions() (*domain.Options, error) {
	data, err := c.client.Get(c.ctx, optionsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("options not found in cache")
		}
		return nil, err
	}

	var opts domain.Options
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// DeleteCachedOptions 删除缓存的站点配置
func (c *Cache) DeleteCachedOptions() error {
	return c.client.Del(c.ctx, optionsKey).Err()
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加限流计数
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	// 增加计数
	incr := pipe.Incr(c.ctx, key)

	// 设置过期时间（如果是新键）
	pipe.Expire(c.ctx, key, window)

	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// GetRateLimit 获取限流计数
func (c *Cache) GetRateLimit(key string) (int64, error) {
	count, err := c.client.Get(c.ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ========== 发布订阅 ==========

const newEntryChannel = "new_entry"

// PublishNewEntry 发布新留言通知（后台实时视图订阅）
func (c *Cache) PublishNewEntry(sub *domain.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return c.client.Publish(c.ctx, newEntryChannel, data).Err()
}

// SubscribeNewEntries 订阅新留言通知
func (c *Cache) SubscribeNewEntries() *redis.PubSub {
	return c.client.Subscribe(c.ctx, newEntryChannel)
}

// ========== 工具方法 ==========

// Health 检查 Redis 连接健康状态
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}

// hashSearch 将搜索串归一化后散列，保持键名长度固定
func hashSearch(search string) string {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return "all"
	}
	sum := sha1.Sum([]byte(search))
	return hex.EncodeToString(sum[:8])
}
