// Package gateway 把会话历史发送给大模型，并把返回文本解析为普通回复或待确认的动作提案。
package gateway
