package domain

import (
	"encoding/json"
	"time"
)

// EmailStatus 表示通知邮件的投递状态
type EmailStatus string

const (
	// EmailStatusPending 留言已保存，邮件尚未投递
	EmailStatusPending EmailStatus = "pending"
	// EmailStatusSent 邮件投递成功
	EmailStatusSent EmailStatus = "sent"
	// EmailStatusFailed 邮件投递失败
	EmailStatusFailed EmailStatus = "failed"
)

// DefaultFormKey 默认表单标识
const DefaultFormKey = "default"

// Submission 表示一条联系表单留言。
//
// 不变量：
//   - EmailStatus 创建时为 pending，只能单次转移到 sent 或 failed，不会回退
//   - EmailSentAt 当且仅当 EmailStatus = sent 时有值
//   - EmailError 仅在 EmailStatus = failed 时有值
type Submission struct {
	ID          int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	FormKey     string      `json:"formKey" gorm:"type:varchar(64);index;not null;default:'default'"`
	Name        string      `json:"name" gorm:"type:varchar(191)"`
	Email       string      `json:"email" gorm:"type:varchar(191)"`
	Phone       *string     `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Subject     *string     `json:"subject,omitempty" gorm:"type:varchar(191)"`
	Message     string      `json:"message" gorm:"type:text"`
	Meta        string      `json:"meta,omitempty" gorm:"type:text"` // 不透明的 JSON 键值对（如 consent 标记）
	IPAddress   string      `json:"-" gorm:"type:varchar(45)"`
	UserAgent   string      `json:"-" gorm:"type:varchar(255)"`
	EmailStatus EmailStatus `json:"emailStatus" gorm:"type:varchar(16);default:'pending'"`
	EmailError  *string     `json:"emailError,omitempty" gorm:"type:text"`
	EmailSentAt *time.Time  `json:"emailSentAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"index"`
}

// TableName 指定留言表名
func (Submission) TableName() string {
	return "zontact_submissions"
}

// EncodeMeta 将元数据键值对序列化为存储用的 JSON 字符串
func EncodeMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeMeta 解析存储的元数据 JSON，解析失败时返回空映射
func DecodeMeta(raw string) map[string]string {
	meta := make(map[string]string)
	if raw == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return map[string]string{}
	}
	return meta
}
