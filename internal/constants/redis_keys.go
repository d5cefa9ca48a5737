package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// FileModulePrefix 文件模块
	FileModulePrefix = "file"
	// RateLimitModulePrefix 限流模块
	RateLimitModulePrefix = "ratelimit"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityUploadWindow 上传限流窗口实体
	EntityUploadWindow = "upload_window"

	// KeyCVHashSet CV内容哈希集合，用于快速去重 (SET)
	// 格式: app:file:dedup_set
	KeyCVHashSet = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyUploadRateWindow 单用户上传限流计数器 (STRING, INCR+EXPIRE)
	// 格式: app:ratelimit:upload_window:{userID}
	KeyUploadRateWindow = AppPrefix + ":" + RateLimitModulePrefix + ":" + EntityUploadWindow + ":%s"
)
