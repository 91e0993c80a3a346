package constants

// Handler constants
const (
	// MaxRequestBodySize is the maximum JSON request body size in bytes (20MB).
	// Base64 frames are about a third larger than the encoded image.
	MaxRequestBodySize = 20 << 20

	// StatusSuccess and StatusError are the values of the "status" field in API responses
	StatusSuccess = "success"
	StatusError   = "error"

	// TimestampLayout is how attendance and employee timestamps are rendered in API responses
	TimestampLayout = "2006-01-02 15:04:05"
)
