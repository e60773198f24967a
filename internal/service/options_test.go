package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/storage/memory"
)

func newOptionsService() (*OptionsService, *memory.Store) {
	store := memory.NewStore()
	return NewOptionsService(store, "admin@example.com", zap.NewNop()), store
}

func TestOptionsService_Effective(t *testing.T) {
	t.Run("无存储配置时返回默认值", func(t *testing.T) {
		svc, _ := newOptionsService()

		opts := svc.Effective()

		assert.Equal(t, "admin@example.com", opts.RecipientEmail)
		assert.True(t, opts.ButtonEnabled())
		assert.True(t, opts.StorageEnabled())
		assert.True(t, opts.ConsentRequired())
		assert.Equal(t, 30, opts.RetentionDays)
	})

	t.Run("存储的覆盖值合并到默认值之上", func(t *testing.T) {
		svc, store := newOptionsService()

		disabled := false
		assert.NoError(t, store.SaveOptions(&domain.Options{
			EnableButton:   &disabled,
			RecipientEmail: "sales@example.com",
			RetentionDays:  90,
		}))

		opts := svc.Effective()

		assert.False(t, opts.ButtonEnabled())
		assert.Equal(t, "sales@example.com", opts.RecipientEmail)
		assert.Equal(t, 90, opts.RetentionDays)
		// 未覆盖的字段保持默认
		assert.Equal(t, "联系我们", opts.ButtonLabel)
	})
}

func TestOptionsService_Update(t *testing.T) {
	t.Run("保存后返回新的有效配置", func(t *testing.T) {
		svc, _ := newOptionsService()

		merged, err := svc.Update(&domain.Options{Subject: "新的邮件主题"})

		assert.NoError(t, err)
		assert.Equal(t, "新的邮件主题", merged.Subject)
		assert.Equal(t, "admin@example.com", merged.RecipientEmail)
	})

	t.Run("收件人邮箱非法时拒绝", func(t *testing.T) {
		svc, store := newOptionsService()

		_, err := svc.Update(&domain.Options{RecipientEmail: "not-an-email"})

		assert.ErrorIs(t, err, ErrInvalidRecipient)

		stored, _ := store.GetOptions()
		assert.Nil(t, stored)
	})

	t.Run("收件人邮箱前后空白被修剪", func(t *testing.T) {
		svc, _ := newOptionsService()

		merged, err := svc.Update(&domain.Options{RecipientEmail: "  sales@example.com  "})

		assert.NoError(t, err)
		assert.Equal(t, "sales@example.com", merged.RecipientEmail)
	})

	t.Run("保留天数为负时拒绝", func(t *testing.T) {
		svc, _ := newOptionsService()

		_, err := svc.Update(&domain.Options{RetentionDays: -1})

		assert.ErrorIs(t, err, ErrInvalidRetention)
	})

	t.Run("非法停靠位置静默回退到默认值", func(t *testing.T) {
		svc, _ := newOptionsService()

		merged, err := svc.Update(&domain.Options{ButtonPosition: "center"})

		assert.NoError(t, err)
		assert.Equal(t, domain.ButtonPositionRight, merged.ButtonPosition)
	})

	t.Run("空告知文本显式关闭同意勾选", func(t *testing.T) {
		svc, _ := newOptionsService()

		empty := ""
		merged, err := svc.Update(&domain.Options{ConsentText: &empty})

		assert.NoError(t, err)
		assert.False(t, merged.ConsentRequired())
	})
}
