package domain

// ButtonPosition 悬浮按钮停靠位置
type ButtonPosition string

const (
	ButtonPositionLeft  ButtonPosition = "left"
	ButtonPositionRight ButtonPosition = "right"
)

// Options 站点级表单配置（单行存储，覆盖默认值）。
//
// 字段为扁平键值结构：存储层保存管理员修改过的值，
// 读取时通过 MergeOptions 浅合并到默认值之上。
type Options struct {
	ID             int64          `json:"-" gorm:"primaryKey"`
	EnableButton   *bool          `json:"enableButton,omitempty"`
	RecipientEmail string         `json:"recipientEmail,omitempty" gorm:"type:varchar(191)"`
	Subject        string         `json:"subject,omitempty" gorm:"type:varchar(191)"`
	SaveMessages   *bool          `json:"saveMessages,omitempty"`
	RetentionDays  int            `json:"retentionDays,omitempty"`
	ButtonPosition ButtonPosition `json:"buttonPosition,omitempty" gorm:"type:varchar(8)"`
	ButtonLabel    string         `json:"buttonLabel,omitempty" gorm:"type:varchar(64)"`
	AccentColor    string         `json:"accentColor,omitempty" gorm:"type:varchar(16)"`
	// ConsentText 为指针：nil 表示未设置（保留默认），空串表示显式清空（关闭同意勾选）
	ConsentText    *string `json:"consentText,omitempty" gorm:"type:text"`
	SuccessMessage string  `json:"successMessage,omitempty" gorm:"type:varchar(255)"`
	// SchemaVersion 数据库结构版本标记，由迁移逻辑维护
	SchemaVersion string `json:"-" gorm:"type:varchar(16)"`
}

// TableName 指定配置表名
func (Options) TableName() string {
	return "zontact_options"
}

// DefaultOptions 返回表单配置的默认值。
//
// 参数:
//   - adminEmail: 站点管理员邮箱，作为收件人默认值
func DefaultOptions(adminEmail string) Options {
	enabled := true
	save := true
	consent := "我同意为答复本次咨询而处理我的个人数据（姓名、邮箱、留言内容）。"
	return Options{
		EnableButton:   &enabled,
		RecipientEmail: adminEmail,
		Subject:        "来自网站的新留言",
		SaveMessages:   &save,
		RetentionDays:  30,
		ButtonPosition: ButtonPositionRight,
		ButtonLabel:    "联系我们",
		AccentColor:    "#2563eb",
		ConsentText:    &consent,
		SuccessMessage: "感谢您的留言，我们会尽快回复。",
	}
}

// MergeOptions 将存储的覆盖值浅合并到默认值之上。
//
// 零值字段视为"未设置"，保留默认值；布尔开关与告知文本使用指针
// 区分未设置与显式清空。
func MergeOptions(defaults Options, stored *Options) Options {
	merged := defaults
	if stored == nil {
		return merged
	}

	if stored.EnableButton != nil {
		merged.EnableButton = stored.EnableButton
	}
	if stored.RecipientEmail != "" {
		merged.RecipientEmail = stored.RecipientEmail
	}
	if stored.Subject != "" {
		merged.Subject = stored.Subject
	}
	if stored.SaveMessages != nil {
		merged.SaveMessages = stored.SaveMessages
	}
	if stored.RetentionDays > 0 {
		merged.RetentionDays = stored.RetentionDays
	}
	if stored.ButtonPosition == ButtonPositionLeft || stored.ButtonPosition == ButtonPositionRight {
		merged.ButtonPosition = stored.ButtonPosition
	}
	if stored.ButtonLabel != "" {
		merged.ButtonLabel = stored.ButtonLabel
	}
	if stored.AccentColor != "" {
		merged.AccentColor = stored.AccentColor
	}
	if stored.ConsentText != nil {
		merged.ConsentText = stored.ConsentText
	}
	if stored.SuccessMessage != "" {
		merged.SuccessMessage = stored.SuccessMessage
	}

	return merged
}

// ButtonEnabled 按钮开关是否开启
func (o Options) ButtonEnabled() bool {
	return o.EnableButton != nil && *o.EnableButton
}

// StorageEnabled 留言存储是否开启
func (o Options) StorageEnabled() bool {
	return o.SaveMessages != nil && *o.SaveMessages
}

// ConsentRequired 配置了告知文本时，勾选同意为必填项
func (o Options) ConsentRequired() bool {
	return o.ConsentText != nil && *o.ConsentText != ""
}

// ConsentTextValue 返回告知文本，未设置时为空串
func (o Options) ConsentTextValue() string {
	if o.ConsentText == nil {
		return ""
	}
	return *o.ConsentText
}
