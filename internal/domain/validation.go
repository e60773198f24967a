package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrEmailTooLong = errors.New("email address too long")
)

// 验证常量
const (
	// RFC 5322 邮箱地址最大长度
	MaxEmailLength = 254
	// 各字段最大长度，与存储列宽保持一致
	MaxNameLength    = 191
	MaxMessageLength = 5000
)

// SubmissionInput 提交留言的原始表单字段
type SubmissionInput struct {
	Name    string
	Email   string
	Message string
	// Website 蜜罐字段：正常用户不会填写，任何非空值视为垃圾提交
	Website string
	Consent bool
}

// IsSpam 蜜罐字段是否被填写
func (in SubmissionInput) IsSpam() bool {
	return strings.TrimSpace(in.Website) != ""
}

// FieldErrors 字段级验证错误集合（字段名 -> 用户可见消息）
type FieldErrors map[string]string

// HasErrors 是否存在字段错误
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}

// ValidateSubmission 校验表单字段并返回全部字段错误。
//
// 蜜罐命中不在此处检查（应在调用方直接终止处理），其余字段错误
// 全部累积后一次性返回，不在首个错误处短路。
//
// 参数:
//   - input: 规范化后的表单输入
//   - consentRequired: 是否要求勾选同意（配置了告知文本时为 true）
func ValidateSubmission(input SubmissionInput, consentRequired bool) FieldErrors {
	errs := make(FieldErrors)

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		errs["name"] = "请填写姓名"
	case len(name) > MaxNameLength:
		errs["name"] = "姓名过长"
	}

	email := strings.TrimSpace(input.Email)
	if email == "" || ValidateEmail(email) != nil {
		errs["email"] = "请填写有效的邮箱地址"
	}

	message := strings.TrimSpace(input.Message)
	switch {
	case message == "":
		errs["message"] = "请填写留言内容"
	case len([]rune(message)) > MaxMessageLength:
		errs["message"] = "留言内容过长"
	}

	if consentRequired && !input.Consent {
		errs["consent"] = "请勾选同意数据处理声明"
	}

	return errs
}

// ValidateEmail 验证邮箱地址格式。
//
// 使用标准库 net/mail 做基础格式验证，并限制整体长度。
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}

	// 拒绝带显示名的写法（如 "Ada <ada@example.com>"），只接受裸地址
	if addr.Address != email {
		return ErrInvalidEmail
	}

	return nil
}
