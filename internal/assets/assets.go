package assets

import (
	_ "embed"
)

// WidgetJS 嵌入的前端挂件脚本，由 /v1/widget.js 原样下发
//
//go:embed widget.js
var WidgetJS []byte

// DefaultEmailTemplate 内置的通知邮件 HTML 模板。
// 站点未提供覆盖模板时作为最后一级模板使用。
//
//go:embed templates/email_submission.html
var DefaultEmailTemplate string
