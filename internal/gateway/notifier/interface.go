// Package notifier 把循环结果推送到外部渠道。
package notifier

// TextNotifier 发送纯文本，失败由调用方决定是否重试。
type TextNotifier interface {
	SendText(text string) error
}

// StructuredNotifier 接收分段消息，由实现决定渲染方式。
type StructuredNotifier interface {
	TextNotifier
	SendStructured(msg StructuredMessage) error
}

var _ StructuredNotifier = (*Telegram)(nil)
