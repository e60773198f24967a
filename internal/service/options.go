package service

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage"
)

var (
	// ErrInvalidRecipient 收件人邮箱格式不合法
	ErrInvalidRecipient = errors.New("invalid recipient email")
	// ErrInvalidRetention 保留天数不合法
	ErrInvalidRetention = errors.New("invalid retention days")
)

// OptionsService 提供站点配置的读取与保存。
//
// 存储层只保存管理员修改过的覆盖值，读取时合并到默认值之上；
// 存储读取失败时回退到默认配置，不阻断提交流程。
type OptionsService struct {
	store      storage.OptionsRepository
	adminEmail string
	logger     *zap.Logger
}

// NewOptionsService 创建配置服务
func NewOptionsService(store storage.OptionsRepository, adminEmail string, logger *zap.Logger) *OptionsService {
	return &OptionsService{
		store:      store,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// Effective 返回合并默认值后的有效配置
func (s *OptionsService) Effective() domain.Options {
	defaults := domain.DefaultOptions(s.adminEmail)

	stored, err := s.store.GetOptions()
	if err != nil {
		s.logger.Warn("failed to load stored options, falling back to defaults", zap.Error(err))
		return defaults
	}

	return domain.MergeOptions(defaults, stored)
}

// Update 保存管理员提交的配置覆盖值并返回新的有效配置
func (s *OptionsService) Update(patch *domain.Options) (domain.Options, error) {
	if email := strings.TrimSpace(patch.RecipientEmail); email != "" {
		if err := domain.ValidateEmail(email); err != nil {
			return domain.Options{}, ErrInvalidRecipient
		}
		patch.RecipientEmail = email
	}

	if patch.RetentionDays < 0 {
		return domain.Options{}, ErrInvalidRetention
	}

	// 非法的停靠位置静默回退到默认值
	if patch.ButtonPosition != "" &&
		patch.ButtonPosition != domain.ButtonPositionLeft &&
		patch.ButtonPosition != domain.ButtonPositionRight {
		patch.ButtonPosition = ""
	}

	if err := s.store.SaveOptions(patch); err != nil {
		return domain.Options{}, err
	}

	s.logger.Info("site options updated")
	return s.Effective(), nil
}
