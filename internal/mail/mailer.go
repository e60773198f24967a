package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"zontact/backend/internal/assets"
	"zontact/backend/internal/config"
	"zontact/backend/internal/domain"
	"zontact/backend/internal/monitoring"
)

// Result 邮件投递结果。
//
// 发送失败不是留言处理流程的错误，调用方通过 Sent/Error
// 判断投递状态并记录到留言上，Send 永远不返回 Go error。
type Result struct {
	Sent   bool
	Error  string
	SentAt time.Time
}

// TemplateData 通知邮件模板变量
type TemplateData struct {
	SiteName    string
	ButtonColor string
	Name        string
	Email       string
	Phone       string
	Subject     string
	Message     string
	SubmittedAt string
}

// Mailer 负责将留言转为通知邮件并通过 SMTP 外发。
type Mailer struct {
	cfg        config.SMTPConfig
	siteDomain string
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	// onFailure 投递失败回调，用于挂接告警等后续动作。
	// 在 Send 调用方的 goroutine 内同步执行。
	onFailure func(sub *domain.Submission, errMsg string)
}

// NewMailer 创建邮件发送器
func NewMailer(cfg config.SMTPConfig, siteDomain string, logger *zap.Logger, metrics *monitoring.Metrics) *Mailer {
	if siteDomain == "" {
		siteDomain = "localhost"
	}
	return &Mailer{
		cfg:        cfg,
		siteDomain: siteDomain,
		logger:     logger,
		metrics:    metrics,
	}
}

// SetOnDeliveryFailure 设置投递失败回调
func (m *Mailer) SetOnDeliveryFailure(fn func(sub *domain.Submission, errMsg string)) {
	m.onFailure = fn
}

// Send 发送留言通知邮件。
//
// 收件人取合并后配置的 RecipientEmail；发件人固定为
// no-reply@站点域名，Reply-To 指向留言人，管理员直接回复即可。
func (m *Mailer) Send(sub *domain.Submission, opts domain.Options) Result {
	start := time.Now()

	recipient := strings.TrimSpace(opts.RecipientEmail)
	if recipient == "" {
		return m.fail(sub, start, "no recipient configured")
	}

	body, contentType := m.renderBody(sub, opts)
	msg := m.buildMessage(sub, opts, recipient, body, contentType)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	from := m.fromAddress()
	if err := smtp.SendMail(addr, auth, from, []string{recipient}, bytes.NewReader(msg)); err != nil {
		return m.fail(sub, start, err.Error())
	}

	sentAt := time.Now().UTC()
	m.logger.Info("notification email sent",
		zap.Int64("submission_id", sub.ID),
		zap.String("recipient", recipient),
		zap.Duration("duration", time.Since(start)),
	)
	if m.metrics != nil {
		m.metrics.RecordEmailSent(time.Since(start))
	}

	return Result{Sent: true, SentAt: sentAt}
}

// fail 统一处理发送失败：记日志、记指标、触发回调
func (m *Mailer) fail(sub *domain.Submission, start time.Time, errMsg string) Result {
	m.logger.Warn("notification email failed",
		zap.Int64("submission_id", sub.ID),
		zap.String("error", errMsg),
	)
	if m.metrics != nil {
		m.metrics.RecordEmailFailed(time.Since(start))
	}
	if m.onFailure != nil {
		m.onFailure(sub, errMsg)
	}
	return Result{Sent: false, Error: errMsg}
}

// fromAddress 构造 no-reply 发件地址
func (m *Mailer) fromAddress() string {
	domainName := m.siteDomain
	if i := strings.Index(domainName, "://"); i >= 0 {
		domainName = domainName[i+3:]
	}
	domainName = strings.TrimSuffix(domainName, "/")
	if i := strings.Index(domainName, ":"); i >= 0 {
		domainName = domainName[:i]
	}
	return "no-reply@" + domainName
}

// renderBody 渲染邮件正文，返回正文和 Content-Type。
//
// 模板解析顺序：
//  1. 配置指定的覆盖模板文件
//  2. 模板目录下的 email_submission.html
//  3. 内置 HTML 模板
//  4. 纯文本兜底（任一模板解析/执行失败时）
func (m *Mailer) renderBody(sub *domain.Submission, opts domain.Options) (string, string) {
	data := TemplateData{
		SiteName:    m.siteDomain,
		ButtonColor: opts.AccentColor,
		Name:        sub.Name,
		Email:       sub.Email,
		Subject:     opts.Subject,
		Message:     sub.Message,
		SubmittedAt: sub.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if sub.Phone != nil {
		data.Phone = *sub.Phone
	}

	for _, source := range m.templateSources() {
		tmpl, err := template.New("email_submission").Parse(source)
		if err != nil {
			m.logger.Warn("email template parse failed", zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			m.logger.Warn("email template execute failed", zap.Error(err))
			continue
		}
		return buf.String(), "text/html; charset=UTF-8"
	}

	// 纯文本兜底
	var b strings.Builder
	fmt.Fprintf(&b, "姓名: %s\r\n", sub.Name)
	fmt.Fprintf(&b, "邮箱: %s\r\n", sub.Email)
	if data.Phone != "" {
		fmt.Fprintf(&b, "电话: %s\r\n", data.Phone)
	}
	fmt.Fprintf(&b, "时间: %s\r\n\r\n%s\r\n", data.SubmittedAt, sub.Message)
	return b.String(), "text/plain; charset=UTF-8"
}

// templateSources 按优先级返回候选模板内容
func (m *Mailer) templateSources() []string {
	var sources []string

	if m.cfg.TemplatePath != "" {
		if content, err := os.ReadFile(m.cfg.TemplatePath); err == nil {
			sources = append(sources, string(content))
		}
	}

	if m.cfg.TemplateDir != "" {
		path := filepath.Join(m.cfg.TemplateDir, "email_submission.html")
		if content, err := os.ReadFile(path); err == nil {
			sources = append(sources, string(content))
		}
	}

	return append(sources, assets.DefaultEmailTemplate)
}

// buildMessage 组装完整的 RFC 5322 邮件
func (m *Mailer) buildMessage(sub *domain.Submission, opts domain.Options, recipient, body, contentType string) []byte {
	subject := fmt.Sprintf("%s - %s", opts.Subject, sub.Name)

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s <%s>\r\n", encodeHeader(m.siteDomain), m.fromAddress())
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(recipient))
	fmt.Fprintf(&b, "Reply-To: %s <%s>\r\n", encodeHeader(sub.Name), sanitizeHeader(sub.Email))
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.Bytes()
}

// encodeHeader 对可能含非 ASCII 字符的头部值做 RFC 2047 编码
func encodeHeader(value string) string {
	return mime.QEncoding.Encode("utf-8", sanitizeHeader(value))
}

// sanitizeHeader 剥离头部注入字符
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return strings.TrimSpace(value)
}
