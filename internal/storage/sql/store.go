package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage"
)

// SchemaVersion 当前数据库结构版本。
// 与存储的版本标记不一致时，Migrate 会重建/升级表结构。
const SchemaVersion = "1.1.0"

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB // GORM 实例，用于迁移和配置单行读写
	driverName string   // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储。
//
// 连接建立后不会自动迁移表结构：迁移是显式步骤，
// 由进程启动时或 migrate 子命令调用 Migrate 完成。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	// 验证驱动类型
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	switch driverName {
	case "mysql":
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	case "postgres":
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// Migrate 幂等地创建/升级表结构。
//
// 对比配置行中的结构版本标记：一致且表存在时不做任何事，
// 否则执行 GORM AutoMigrate 并更新版本标记。重复调用安全。
func (s *Store) Migrate() error {
	if s.currentSchemaVersion() == SchemaVersion {
		return nil
	}

	if err := s.gormDB.AutoMigrate(
		&domain.Submission{},
		&domain.Options{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return s.writeSchemaVersion(SchemaVersion)
}

// currentSchemaVersion 读取存储的结构版本标记。
// 表不存在或无记录时返回空串（视为缺失）。
func (s *Store) currentSchemaVersion() string {
	if !s.gormDB.Migrator().HasTable(&domain.Options{}) {
		return ""
	}

	var opts domain.Options
	if err := s.gormDB.First(&opts).Error; err != nil {
		return ""
	}

	// 留言表被外部删除时同样视为版本缺失（自愈）
	if !s.gormDB.Migrator().HasTable(&domain.Submission{}) {
		return ""
	}

	return opts.SchemaVersion
}

// writeSchemaVersion 更新配置行中的结构版本标记（单行 upsert）
func (s *Store) writeSchemaVersion(version string) error {
	var opts domain.Options
	err := s.gormDB.First(&opts).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		opts = domain.Options{ID: 1, SchemaVersion: version}
		return s.gormDB.Create(&opts).Error
	case err != nil:
		return err
	default:
		return s.gormDB.Model(&opts).Update("schema_version", version).Error
	}
}

// placeholder 根据数据库类型返回占位符
func (s *Store) placeholder(n int) string {
	if s.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// placeholders 生成 n 个从 start 开始编号的占位符串
func (s *Store) placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = s.placeholder(start + i)
	}
	return strings.Join(parts, ",")
}

const submissionColumns = `id, form_key, name, email, phone, subject, message, meta,
	ip_address, user_agent, email_status, email_error, email_sent_at, created_at`

// InsertSubmission 插入留言并回填生成的 ID
func (s *Store) InsertSubmission(sub *domain.Submission) error {
	if sub.FormKey == "" {
		sub.FormKey = domain.DefaultFormKey
	}
	if sub.EmailStatus == "" {
		sub.EmailStatus = domain.EmailStatusPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	cols := `form_key, name, email, phone, subject, message, meta,
		ip_address, user_agent, email_status, email_error, email_sent_at, created_at`
	args := []interface{}{
		sub.FormKey, sub.Name, sub.Email, sub.Phone, sub.Subject, sub.Message, sub.Meta,
		sub.IPAddress, sub.UserAgent, string(sub.EmailStatus), sub.EmailError, sub.EmailSentAt, sub.CreatedAt,
	}

	if s.driverName == "postgres" {
		query := fmt.Sprintf(
			"INSERT INTO zontact_submissions (%s) VALUES (%s) RETURNING id",
			cols, s.placeholders(1, len(args)),
		)
		return s.db.QueryRow(query, args...).Scan(&sub.ID)
	}

	query := fmt.Sprintf(
		"INSERT INTO zontact_submissions (%s) VALUES (%s)",
		cols, s.placeholders(1, len(args)),
	)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = id
	return nil
}

// UpdateEmailStatus 单次更新邮件投递状态
func (s *Store) UpdateEmailStatus(id int64, status domain.EmailStatus, emailErr *string, sentAt *time.Time) error {
	// 不变量：email_error 仅在 failed 时有值，email_sent_at 仅在 sent 时有值
	if status != domain.EmailStatusFailed {
		emailErr = nil
	}
	if status != domain.EmailStatusSent {
		sentAt = nil
	}

	query := fmt.Sprintf(
		"UPDATE zontact_submissions SET email_status = %s, email_error = %s, email_sent_at = %s WHERE id = %s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
	)
	result, err := s.db.Exec(query, string(status), emailErr, sentAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrSubmissionNotFound
	}
	return nil
}

// ListSubmissions 按 ID 倒序返回一页留言
func (s *Store) ListSubmissions(q storage.ListQuery) ([]domain.Submission, error) {
	q = q.Normalize()

	where, args, next := s.searchClause(q.Search, 1)
	query := fmt.Sprintf(
		"SELECT %s FROM zontact_submissions WHERE %s ORDER BY id DESC LIMIT %s OFFSET %s",
		submissionColumns, where, s.placeholder(next), s.placeholder(next+1),
	)
	args = append(args, q.PerPage, q.Offset())

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// CountSubmissions 返回匹配搜索条件的总条数
func (s *Store) CountSubmissions(search string) (int, error) {
	where, args, _ := s.searchClause(search, 1)
	query := fmt.Sprintf("SELECT COUNT(*) FROM zontact_submissions WHERE %s", where)

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteSubmissionsByIDs 按 ID 批量删除，返回实际删除条数
func (s *Store) DeleteSubmissionsByIDs(ids []int64) (int, error) {
	ids = storage.SanitizeIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(
		"DELETE FROM zontact_submissions WHERE id IN (%s)",
		s.placeholders(1, len(ids)),
	)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// DeleteSubmissionsBefore 删除 cutoff 之前创建的留言（保留期清理）
func (s *Store) DeleteSubmissionsBefore(cutoff time.Time) (int, error) {
	query := fmt.Sprintf(
		"DELETE FROM zontact_submissions WHERE created_at < %s",
		s.placeholder(1),
	)
	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ListAllForExport 返回全表留言（导出用，ID 倒序）
func (s *Store) ListAllForExport() ([]domain.Submission, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM zontact_submissions ORDER BY id DESC",
		submissionColumns,
	)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// ListByIDsForExport 返回指定 ID 集合的留言（导出用，ID 倒序）
func (s *Store) ListByIDsForExport(ids []int64) ([]domain.Submission, error) {
	ids = storage.SanitizeIDs(ids)
	if len(ids) == 0 {
		return []domain.Submission{}, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT %s FROM zontact_submissions WHERE id IN (%s) ORDER BY id DESC",
		submissionColumns, s.placeholders(1, len(ids)),
	)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// GetOptions 返回存储的配置覆盖值，尚未保存过时返回 (nil, nil)
func (s *Store) GetOptions() (*domain.Options, error) {
	var opts domain.Options
	err := s.gormDB.First(&opts).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &opts, nil
}

// SaveOptions 保存配置覆盖值（单行 upsert，保留结构版本标记）
func (s *Store) SaveOptions(opts *domain.Options) error {
	var existing domain.Options
	err := s.gormDB.First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		opts.ID = 1
		return s.gormDB.Create(opts).Error
	case err != nil:
		return err
	default:
		opts.ID = existing.ID
		opts.SchemaVersion = existing.SchemaVersion
		return s.gormDB.Save(opts).Error
	}
}

// searchClause 构造搜索条件子句。
//
// 返回 WHERE 片段、参数列表和下一个占位符编号。
// 搜索对 name/email/message 做大小写不敏感的子串匹配。
func (s *Store) searchClause(search string, start int) (string, []interface{}, int) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "1=1", nil, start
	}

	like := "%" + strings.ToLower(search) + "%"
	clause := fmt.Sprintf(
		"(LOWER(name) LIKE %s OR LOWER(email) LIKE %s OR LOWER(message) LIKE %s)",
		s.placeholder(start), s.placeholder(start+1), s.placeholder(start+2),
	)
	return clause, []interface{}{like, like, like}, start + 3
}

// scanSubmissions 将查询结果扫描为留言切片
func scanSubmissions(rows *sql.Rows) ([]domain.Submission, error) {
	out := []domain.Submission{}
	for rows.Next() {
		var (
			sub        domain.Submission
			phone      sql.NullString
			subject    sql.NullString
			emailError sql.NullString
			sentAt     sql.NullTime
			status     string
		)
		if err := rows.Scan(
			&sub.ID, &sub.FormKey, &sub.Name, &sub.Email, &phone, &subject, &sub.Message, &sub.Meta,
			&sub.IPAddress, &sub.UserAgent, &status, &emailError, &sentAt, &sub.CreatedAt,
		); err != nil {
			return nil, err
		}

		sub.EmailStatus = domain.EmailStatus(status)
		if phone.Valid {
			sub.Phone = &phone.String
		}
		if subject.Valid {
			sub.Subject = &subject.String
		}
		if emailError.Valid {
			sub.EmailError = &emailError.String
		}
		if sentAt.Valid {
			t := sentAt.Time
			sub.EmailSentAt = &t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
