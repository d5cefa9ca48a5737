package constants

import "time"

const (
	// DefaultExtractorVer 当前提取流水线版本，写入提交记录便于追溯
	DefaultExtractorVer = "1.0"

	// CV提交处理状态
	StatusPendingExtraction = "PENDING_EXTRACTION"
	StatusMerged            = "MERGED"
	StatusExtractionFailed  = "EXTRACTION_FAILED"
	StatusDuplicateSkipped  = "DUPLICATE_FILE_SKIPPED"

	// CVHashExpireDefault 内容哈希记录的默认保留时间
	CVHashExpireDefault = 365 * 24 * time.Hour
)
