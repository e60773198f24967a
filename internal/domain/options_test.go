package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions("admin@example.com")

	assert.True(t, opts.ButtonEnabled())
	assert.True(t, opts.StorageEnabled())
	assert.True(t, opts.ConsentRequired())
	assert.Equal(t, "admin@example.com", opts.RecipientEmail)
	assert.Equal(t, ButtonPositionRight, opts.ButtonPosition)
	assert.Equal(t, 30, opts.RetentionDays)
}

func TestMergeOptions(t *testing.T) {
	defaults := DefaultOptions("admin@example.com")

	t.Run("未存储过配置时返回默认值", func(t *testing.T) {
		merged := MergeOptions(defaults, nil)
		assert.Equal(t, defaults, merged)
	})

	t.Run("零值字段保留默认值", func(t *testing.T) {
		merged := MergeOptions(defaults, &Options{})

		assert.Equal(t, defaults.RecipientEmail, merged.RecipientEmail)
		assert.Equal(t, defaults.Subject, merged.Subject)
		assert.True(t, merged.ButtonEnabled())
		assert.True(t, merged.StorageEnabled())
		assert.True(t, merged.ConsentRequired())
	})

	t.Run("非零字段覆盖默认值", func(t *testing.T) {
		disabled := false
		merged := MergeOptions(defaults, &Options{
			RecipientEmail: "other@example.com",
			EnableButton:   &disabled,
			RetentionDays:  7,
			ButtonPosition: ButtonPositionLeft,
		})

		assert.Equal(t, "other@example.com", merged.RecipientEmail)
		assert.False(t, merged.ButtonEnabled())
		assert.Equal(t, 7, merged.RetentionDays)
		assert.Equal(t, ButtonPositionLeft, merged.ButtonPosition)
	})

	t.Run("显式清空告知文本关闭同意要求", func(t *testing.T) {
		empty := ""
		merged := MergeOptions(defaults, &Options{ConsentText: &empty})

		assert.False(t, merged.ConsentRequired())
		assert.Equal(t, "", merged.ConsentTextValue())
	})

	t.Run("非法停靠位置保留默认值", func(t *testing.T) {
		merged := MergeOptions(defaults, &Options{ButtonPosition: "top"})
		assert.Equal(t, ButtonPositionRight, merged.ButtonPosition)
	})
}

func TestMeta(t *testing.T) {
	t.Run("编码解码往返", func(t *testing.T) {
		raw := EncodeMeta(map[string]string{"consent": "1"})
		assert.NotEmpty(t, raw)
		assert.Equal(t, "1", DecodeMeta(raw)["consent"])
	})

	t.Run("空元数据编码为空串", func(t *testing.T) {
		assert.Equal(t, "", EncodeMeta(nil))
	})

	t.Run("坏数据解码为空映射", func(t *testing.T) {
		assert.Empty(t, DecodeMeta("{not json"))
	})
}
