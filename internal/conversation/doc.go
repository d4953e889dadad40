// Package conversation 定义会话历史、待确认操作以及模型输出的核心类型，
// 并提供这两类存储的内存实现。Redis、DynamoDB 等持久化实现位于 internal/storage。
package conversation
