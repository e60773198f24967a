package service

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/domain"
	"zontact/backend/internal/mail"
	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/storage"
)

var (
	// ErrNonceInvalid 提交令牌缺失、过期或不匹配
	ErrNonceInvalid = errors.New("nonce verification failed")
	// ErrSpam 蜜罐字段被填写，判定为垃圾提交
	ErrSpam = errors.New("honeypot triggered")
)

// ValidationError 携带字段级验证错误的聚合错误
type ValidationError struct {
	Fields domain.FieldErrors
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return "submission validation failed"
}

// SubmitRequest 一次留言提交的完整输入
type SubmitRequest struct {
	Input     domain.SubmissionInput
	Nonce     string
	IPAddress string
	UserAgent string
}

// SubmitOutcome 留言处理结果。
//
// Warning 非空表示次要环节（存档或通知邮件）出了问题，
// 但留言本身已被接收，不作为失败返回给访客。
type SubmitOutcome struct {
	Submission *domain.Submission
	Message    string
	Warning    string
}

// SubmissionService 编排留言提交的完整流程：
// 令牌校验 → 蜜罐检查 → 字段验证 → 存档 → 通知邮件 → 状态回写。
type SubmissionService struct {
	store   storage.Store
	options *OptionsService
	mailer  *mail.Mailer
	nonces  *nonce.Manager
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// notify 新留言回调，用于挂接后台实时推送。可为 nil。
	notify func(*domain.Submission)
}

// SetEntryNotifier 设置新留言回调
func (s *SubmissionService) SetEntryNotifier(fn func(*domain.Submission)) {
	s.notify = fn
}

// NewSubmissionService 创建留言服务
func NewSubmissionService(
	store storage.Store,
	options *OptionsService,
	mailer *mail.Mailer,
	nonces *nonce.Manager,
	logger *zap.Logger,
	metrics *monitoring.Metrics,
) *SubmissionService {
	return &SubmissionService{
		store:   store,
		options: options,
		mailer:  mailer,
		nonces:  nonces,
		logger:  logger,
		metrics: metrics,
	}
}

// Submit 处理一次留言提交。
//
// 错误语义：
//   - ErrNonceInvalid: 令牌校验失败，调用方应返回 403
//   - ErrSpam: 蜜罐命中，调用方应返回 400
//   - *ValidationError: 字段验证失败，调用方应返回 422 和全部字段错误
//
// 存档失败和邮件发送失败都不是错误：留言已被接收，
// 通过 SubmitOutcome.Warning 告知访客。
func (s *SubmissionService) Submit(req SubmitRequest) (*SubmitOutcome, error) {
	if err := s.nonces.Verify(req.Nonce, nonce.ActionSubmit); err != nil {
		s.metrics.RecordSubmissionRejected("nonce")
		return nil, ErrNonceInvalid
	}

	// 蜜罐命中：立即终止，不做字段验证，不留任何痕迹
	if req.Input.IsSpam() {
		s.logger.Info("honeypot triggered", zap.String("ip", req.IPAddress))
		s.metrics.RecordSpamBlocked()
		return nil, ErrSpam
	}

	opts := s.options.Effective()

	if errs := domain.ValidateSubmission(req.Input, opts.ConsentRequired()); errs.HasErrors() {
		s.metrics.RecordSubmissionRejected("validation")
		return nil, &ValidationError{Fields: errs}
	}

	sub := &domain.Submission{
		FormKey:   domain.DefaultFormKey,
		Name:      strings.TrimSpace(req.Input.Name),
		Email:     strings.TrimSpace(req.Input.Email),
		Message:   strings.TrimSpace(req.Input.Message),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	// 每条留言记下当时生效的通知主题，后续导出按行还原
	if subject := opts.Subject; subject != "" {
		sub.Subject = &subject
	}
	if req.Input.Consent {
		sub.Meta = domain.EncodeMeta(map[string]string{"consent": "1"})
	}

	var warnings []string

	// 先存档后发信：开启存档时，存档失败要让访客知道
	stored := false
	if opts.StorageEnabled() {
		if err := s.store.InsertSubmission(sub); err != nil {
			s.logger.Error("failed to store submission", zap.Error(err))
			s.metrics.RecordStorageWriteError()
			warnings = append(warnings, "留言未能存档。")
		} else {
			stored = true
		}
	}

	result := s.mailer.Send(sub, opts)
	if !result.Sent {
		warnings = append(warnings, "通知邮件发送失败，管理员可能无法及时看到您的留言。")
	}

	// 状态回写只针对已存档的留言，失败不影响返回结果
	if stored {
		s.writeEmailStatus(sub, result)
	}

	if s.notify != nil {
		s.notify(sub)
	}

	s.metrics.RecordSubmission()
	s.logger.Info("submission accepted",
		zap.Int64("id", sub.ID),
		zap.Bool("stored", stored),
		zap.Bool("email_sent", result.Sent),
	)

	return &SubmitOutcome{
		Submission: sub,
		Message:    opts.SuccessMessage,
		Warning:    strings.Join(warnings, " "),
	}, nil
}

// writeEmailStatus 将邮件投递结果回写到留言上
func (s *SubmissionService) writeEmailStatus(sub *domain.Submission, result mail.Result) {
	var err error
	if result.Sent {
		sentAt := result.SentAt
		err = s.store.UpdateEmailStatus(sub.ID, domain.EmailStatusSent, nil, &sentAt)
		sub.EmailStatus = domain.EmailStatusSent
		sub.EmailSentAt = &sentAt
	} else {
		errMsg := result.Error
		err = s.store.UpdateEmailStatus(sub.ID, domain.EmailStatusFailed, &errMsg, nil)
		sub.EmailStatus = domain.EmailStatusFailed
		sub.EmailError = &errMsg
	}
	if err != nil {
		s.logger.Warn("failed to update email status",
			zap.Int64("id", sub.ID),
			zap.Error(err),
		)
	}
}

// EntryPage 后台列表的一页数据
type EntryPage struct {
	Entries    []domain.Submission `json:"entries"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"perPage"`
	TotalPages int                 `json:"totalPages"`
}

// List 返回后台留言列表的一页
func (s *SubmissionService) List(q storage.ListQuery) (*EntryPage, error) {
	q = q.Normalize()

	entries, err := s.store.ListSubmissions(q)
	if err != nil {
		return nil, err
	}

	total, err := s.store.CountSubmissions(q.Search)
	if err != nil {
		return nil, err
	}

	totalPages := (total + q.PerPage - 1) / q.PerPage
	if totalPages < 1 {
		totalPages = 1
	}

	return &EntryPage{
		Entries:    entries,
		Total:      total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: totalPages,
	}, nil
}

// BulkDelete 批量删除留言，返回实际删除条数
func (s *SubmissionService) BulkDelete(ids []int64) (int, error) {
	deleted, err := s.store.DeleteSubmissionsByIDs(ids)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.metrics.RecordEntriesDeleted(deleted)
		s.logger.Info("entries deleted", zap.Int("count", deleted))
	}
	return deleted, nil
}
