package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"Valid email", "test@example.com", true},
		{"Valid email with subdomain", "user@mail.example.com", true},
		{"Valid email with plus", "user+tag@example.com", true},
		{"Valid email with dots", "user.name@example.com", true},
		{"Invalid email - no @", "testexample.com", false},
		{"Invalid email - no domain", "test@", false},
		{"Invalid email - no local part", "@example.com", false},
		{"Invalid email - empty", "", false},
		{"Invalid email - spaces", "test @example.com", false},
		{"Invalid email - display name form", "Ada <ada@example.com>", false},
		{"Invalid email - too long", strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateSubmission(t *testing.T) {
	valid := SubmissionInput{
		Name:    "张三",
		Email:   "zhangsan@example.com",
		Message: "你好，想咨询一下产品。",
	}

	t.Run("合法提交没有字段错误", func(t *testing.T) {
		errs := ValidateSubmission(valid, false)
		assert.False(t, errs.HasErrors())
	})

	t.Run("全部字段错误一次性累积返回", func(t *testing.T) {
		errs := ValidateSubmission(SubmissionInput{}, true)

		assert.True(t, errs.HasErrors())
		assert.Len(t, errs, 4)
		assert.Contains(t, errs, "name")
		assert.Contains(t, errs, "email")
		assert.Contains(t, errs, "message")
		assert.Contains(t, errs, "consent")
	})

	t.Run("字段只保留首个错误消息", func(t *testing.T) {
		input := valid
		input.Name = ""
		errs := ValidateSubmission(input, false)

		assert.Len(t, errs, 1)
		assert.Equal(t, "请填写姓名", errs["name"])
	})

	t.Run("姓名超长被拒绝", func(t *testing.T) {
		input := valid
		input.Name = strings.Repeat("a", MaxNameLength+1)
		errs := ValidateSubmission(input, false)

		assert.Contains(t, errs, "name")
	})

	t.Run("留言按字符数而非字节数限长", func(t *testing.T) {
		input := valid
		// 中文字符：5000 个字符是合法的，尽管字节数是三倍
		input.Message = strings.Repeat("好", MaxMessageLength)
		errs := ValidateSubmission(input, false)
		assert.False(t, errs.HasErrors())

		input.Message = strings.Repeat("好", MaxMessageLength+1)
		errs = ValidateSubmission(input, false)
		assert.Contains(t, errs, "message")
	})

	t.Run("未要求同意时不检查同意勾选", func(t *testing.T) {
		input := valid
		input.Consent = false
		errs := ValidateSubmission(input, false)
		assert.False(t, errs.HasErrors())
	})

	t.Run("要求同意且已勾选时通过", func(t *testing.T) {
		input := valid
		input.Consent = true
		errs := ValidateSubmission(input, true)
		assert.False(t, errs.HasErrors())
	})

	t.Run("首尾空白不影响验证", func(t *testing.T) {
		input := SubmissionInput{
			Name:    "  张三  ",
			Email:   " zhangsan@example.com ",
			Message: "  你好  ",
		}
		errs := ValidateSubmission(input, false)
		assert.False(t, errs.HasErrors())
	})
}

func TestSubmissionInput_IsSpam(t *testing.T) {
	assert.False(t, SubmissionInput{Website: ""}.IsSpam())
	assert.False(t, SubmissionInput{Website: "   "}.IsSpam())
	assert.True(t, SubmissionInput{Website: "http://spam.example"}.IsSpam())
}
