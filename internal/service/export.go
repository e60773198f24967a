package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/storage"
)

// ErrExportNotEntitled CSV 导出未被授权
var ErrExportNotEntitled = errors.New("csv export not entitled")

// utf8BOM 写在 CSV 最前面，让 Excel 正确识别 UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// exportHeader 导出文件的固定列头
var exportHeader = []string{
	"ID", "Name", "Email", "Subject", "Message",
	"Email Status", "Email Sent At", "Email Error", "Created At",
}

// flushEvery 流式导出时每多少行刷一次输出
const flushEvery = 100

// ExportService 负责后台留言的 CSV 导出。
//
// 导出受外部授权标记控制：未授权时任何导出请求都被拒绝。
type ExportService struct {
	store   storage.SubmissionRepository
	enabled bool
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewExportService 创建导出服务
func NewExportService(store storage.SubmissionRepository, enabled bool, logger *zap.Logger, metrics *monitoring.Metrics) *ExportService {
	return &ExportService{
		store:   store,
		enabled: enabled,
		logger:  logger,
		metrics: metrics,
	}
}

// Enabled 导出功能是否已授权
func (s *ExportService) Enabled() bool {
	return s.enabled
}

// Filename 生成带时间戳的导出文件名
func (s *ExportService) Filename() string {
	return fmt.Sprintf("zontact-entries-%s.csv", time.Now().Format("20060102-150405"))
}

// Fetch 取出待导出的留言，不产生任何输出。
//
// ids 为 nil 取出全部留言；显式给出 ID 集合但清洗后为空
// （全是非法 ID）时返回 storage.ErrNoEntries。
// 调用方在 Fetch 成功之后再发送下载响应头并调用 Write，
// 保证终止性错误不会混进 CSV 附件里。
func (s *ExportService) Fetch(ids []int64) ([]domain.Submission, error) {
	if !s.enabled {
		s.metrics.RecordExportDenied()
		return nil, ErrExportNotEntitled
	}

	var (
		subs []domain.Submission
		err  error
	)
	if ids == nil {
		subs, err = s.store.ListAllForExport()
	} else {
		valid := storage.SanitizeIDs(ids)
		if len(valid) == 0 {
			return nil, storage.ErrNoEntries
		}
		subs, err = s.store.ListByIDsForExport(valid)
	}
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, storage.ErrNoEntries
	}
	return subs, nil
}

// Export 取出并流式写出留言，返回导出行数。
// 取数阶段失败时 w 上没有任何字节被写出。
func (s *ExportService) Export(w io.Writer, ids []int64) (int, error) {
	subs, err := s.Fetch(ids)
	if err != nil {
		return 0, err
	}
	return s.Write(w, subs)
}

// Write 将已取出的留言以 CSV 流式写入 w，返回写出的行数
func (s *ExportService) Write(w io.Writer, subs []domain.Submission) (int, error) {
	if _, err := w.Write(utf8BOM); err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}

	flusher, _ := w.(interface{ Flush() })

	rows := 0
	for _, sub := range subs {
		if err := cw.Write(exportRow(sub)); err != nil {
			return rows, err
		}
		rows++

		if rows%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return rows, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, err
	}

	s.metrics.RecordExport(rows)
	s.logger.Info("entries exported", zap.Int("rows", rows))
	return rows, nil
}

// exportRow 将一条留言转为 CSV 行
func exportRow(sub domain.Submission) []string {
	subject := ""
	if sub.Subject != nil {
		subject = *sub.Subject
	}
	sentAt := ""
	if sub.EmailSentAt != nil {
		sentAt = sub.EmailSentAt.Format("2006-01-02 15:04:05")
	}
	emailErr := ""
	if sub.EmailError != nil {
		emailErr = *sub.EmailError
	}

	return []string{
		fmt.Sprintf("%d", sub.ID),
		sub.Name,
		sub.Email,
		subject,
		sub.Message,
		string(sub.EmailStatus),
		sentAt,
		emailErr,
		sub.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
