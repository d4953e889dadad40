package auth

import "context"

// userIDKey 是上下文中存储调用方用户 ID 的键类型。
type userIDKey struct{}

// WithUserID 将调用方声明的用户 ID 存储到上下文中。
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext 从上下文中提取用户 ID。
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
