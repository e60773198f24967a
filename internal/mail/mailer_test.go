package mail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"zontact/backend/internal/config"
	"zontact/backend/internal/domain"
)

func testSubmission() *domain.Submission {
	return &domain.Submission{
		ID:        1,
		Name:      "张三",
		Email:     "zhangsan@example.com",
		Message:   "想咨询一下产品价格。",
		CreatedAt: time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestMailer_RenderBody(t *testing.T) {
	opts := domain.DefaultOptions("admin@example.com")

	t.Run("默认使用内置 HTML 模板", func(t *testing.T) {
		m := NewMailer(config.SMTPConfig{}, "example.com", zap.NewNop(), nil)

		body, contentType := m.renderBody(testSubmission(), opts)

		assert.Contains(t, contentType, "text/html")
		assert.Contains(t, body, "张三")
		assert.Contains(t, body, "zhangsan@example.com")
		assert.Contains(t, body, "想咨询一下产品价格。")
		assert.Contains(t, body, opts.AccentColor)
	})

	t.Run("覆盖模板优先于内置模板", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.html")
		assert.NoError(t, os.WriteFile(path, []byte("<p>custom: {{.Name}}</p>"), 0o644))

		m := NewMailer(config.SMTPConfig{TemplatePath: path}, "example.com", zap.NewNop(), nil)
		body, _ := m.renderBody(testSubmission(), opts)

		assert.Equal(t, "<p>custom: 张三</p>", body)
	})

	t.Run("模板目录作为次优先级", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "email_submission.html")
		assert.NoError(t, os.WriteFile(path, []byte("<p>theme: {{.Email}}</p>"), 0o644))

		m := NewMailer(config.SMTPConfig{TemplateDir: dir}, "example.com", zap.NewNop(), nil)
		body, _ := m.renderBody(testSubmission(), opts)

		assert.Equal(t, "<p>theme: zhangsan@example.com</p>", body)
	})

	t.Run("坏模板回退到内置模板", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.html")
		assert.NoError(t, os.WriteFile(path, []byte("{{.Unclosed"), 0o644))

		m := NewMailer(config.SMTPConfig{TemplatePath: path}, "example.com", zap.NewNop(), nil)
		body, contentType := m.renderBody(testSubmission(), opts)

		assert.Contains(t, contentType, "text/html")
		assert.Contains(t, body, "张三")
	})

	t.Run("模板转义留言中的 HTML", func(t *testing.T) {
		m := NewMailer(config.SMTPConfig{}, "example.com", zap.NewNop(), nil)
		sub := testSubmission()
		sub.Message = "<script>alert(1)</script>"

		body, _ := m.renderBody(sub, opts)

		assert.NotContains(t, body, "<script>")
	})
}

func TestMailer_BuildMessage(t *testing.T) {
	m := NewMailer(config.SMTPConfig{}, "example.com", zap.NewNop(), nil)
	opts := domain.DefaultOptions("admin@example.com")

	t.Run("头部包含回复地址和主题", func(t *testing.T) {
		msg := string(m.buildMessage(testSubmission(), opts, "admin@example.com", "body", "text/html; charset=UTF-8"))

		assert.Contains(t, msg, "To: admin@example.com\r\n")
		assert.Contains(t, msg, "zhangsan@example.com")
		assert.Contains(t, msg, "Reply-To: ")
		assert.Contains(t, msg, "From: ")
		assert.Contains(t, msg, "no-reply@example.com")
		assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
	})

	t.Run("头部注入字符被剥离", func(t *testing.T) {
		sub := testSubmission()
		sub.Name = "Evil\r\nBcc: victim@example.com"

		msg := string(m.buildMessage(sub, opts, "admin@example.com", "body", "text/plain"))

		assert.NotContains(t, msg, "Bcc: victim@example.com\r\n")
	})
}

func TestMailer_FromAddress(t *testing.T) {
	tests := []struct {
		domain   string
		expected string
	}{
		{"example.com", "no-reply@example.com"},
		{"https://example.com/", "no-reply@example.com"},
		{"example.com:8080", "no-reply@example.com"},
		{"", "no-reply@localhost"},
	}

	for _, tt := range tests {
		m := NewMailer(config.SMTPConfig{}, tt.domain, zap.NewNop(), nil)
		assert.Equal(t, tt.expected, m.fromAddress())
	}
}

func TestMailer_SendFailure(t *testing.T) {
	// 连接不上的 SMTP 服务器：发送失败但不返回 Go error
	m := NewMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 1}, "example.com", zap.NewNop(), nil)
	opts := domain.DefaultOptions("admin@example.com")

	var callbackErr string
	m.SetOnDeliveryFailure(func(sub *domain.Submission, errMsg string) {
		callbackErr = errMsg
	})

	result := m.Send(testSubmission(), opts)

	assert.False(t, result.Sent)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, result.Error, callbackErr)
}

func TestMailer_SendWithoutRecipient(t *testing.T) {
	m := NewMailer(config.SMTPConfig{}, "example.com", zap.NewNop(), nil)
	opts := domain.Options{}

	result := m.Send(testSubmission(), opts)

	assert.False(t, result.Sent)
	assert.Contains(t, result.Error, "no recipient")
}

func TestMailer_TemplateSources(t *testing.T) {
	m := NewMailer(config.SMTPConfig{TemplatePath: "/nonexistent/path.html"}, "example.com", zap.NewNop(), nil)

	sources := m.templateSources()

	// 不存在的覆盖文件被跳过，内置模板永远在最后
	assert.Len(t, sources, 1)
	assert.True(t, strings.Contains(sources[0], "{{.Name}}"))
}
