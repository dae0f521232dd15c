package types

import "time"

// GenerationStatus represents the status of a feed generation run
type GenerationStatus string

const (
	GenerationRunning   GenerationStatus = "running"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// UploadStatus represents the outcome of uploading a published feed
type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadSuccess UploadStatus = "success"
	UploadFailed  UploadStatus = "failed"
	UploadSkipped UploadStatus = "skipped"
)

// ProductError is a recorded per-product failure
type ProductError struct {
	ProductID int64  `json:"productId"`
	SKU       string `json:"sku"`
	Message   string `json:"message"`
}

// GenerationLog tracks one generation run. The running row doubles as the
// per-feed concurrency lock.
type GenerationLog struct {
	ID             string           `json:"id" db:"id"`
	FeedID         int64            `json:"feedId" db:"feed_id"`
	Status         GenerationStatus `json:"status" db:"status"`
	StartedAt      time.Time        `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty" db:"completed_at"`
	TotalProducts  int              `json:"totalProducts" db:"total_products"`
	ProcessedCount int              `json:"processedCount" db:"processed_count"`
	ProductCount   int              `json:"productCount" db:"product_count"`
	ErrorCount     int              `json:"errorCount" db:"error_count"`
	Errors         []ProductError   `json:"errors,omitempty" db:"-"`
	Message        string           `json:"message,omitempty" db:"message"`
	FilePath       string           `json:"filePath,omitempty" db:"file_path"`
	FileSize       int64            `json:"fileSize" db:"file_size"`
	UploadStatus   UploadStatus     `json:"uploadStatus,omitempty" db:"upload_status"`
	UploadMessage  string           `json:"uploadMessage,omitempty" db:"upload_message"`
}

// Clone returns a deep copy of the log
func (l *GenerationLog) Clone() *GenerationLog {
	c := *l
	if l.CompletedAt != nil {
		t := *l.CompletedAt
		c.CompletedAt = &t
	}
	if l.Errors != nil {
		c.Errors = make([]ProductError, len(l.Errors))
		copy(c.Errors, l.Errors)
	}
	return &c
}

// Progress returns processed/total as a percentage
func (l *GenerationLog) Progress() float64 {
	if l.TotalProducts <= 0 {
		if l.Status == GenerationCompleted {
			return 100
		}
		return 0
	}
	p := float64(l.ProcessedCount) / float64(l.TotalProducts) * 100
	if p > 100 {
		return 100
	}
	return p
}

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to the given int
func IntPtr(i int) *int {
	return &i
}

// Int64Ptr returns a pointer to the given int64
func Int64Ptr(i int64) *int64 {
	return &i
}

// Float64Ptr returns a pointer to the given float64
func Float64Ptr(f float64) *float64 {
	return &f
}

// TimePtr returns a pointer to the given time
func TimePtr(t time.Time) *time.Time {
	return &t
}

// BoolPtr returns a pointer to the given bool
func BoolPtr(b bool) *bool {
	return &b
}
