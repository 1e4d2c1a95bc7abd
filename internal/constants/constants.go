// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Recognition constants
const (
	// DefaultTolerance is the default maximum face distance for a roster match.
	// Lower values require a more exact match.
	DefaultTolerance = 0.5

	// UnknownLabel is shown for faces that match no roster record.
	UnknownLabel = "Unknown"

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920
)

// Roster index constants
const (
	// HNSWMinRoster is the roster size above which matching goes through the HNSW index.
	// Smaller rosters are scanned linearly.
	HNSWMinRoster = 256

	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWCandidates is the number of nearest candidates fetched from the index
	// before exact distances are recomputed.
	HNSWCandidates = 10
)

// Camera constants
const (
	// DefaultCameraWidth and DefaultCameraHeight are the capture size requested from the webcam.
	DefaultCameraWidth  = 640
	DefaultCameraHeight = 480

	// FrameInterval throttles live tracking so recognition does not saturate the face service.
	FrameInterval = 200 * time.Millisecond
)

// Attendance constants
const (
	// DateLayout is the layout of attendance file names and report dates.
	DateLayout = "2006-01-02"

	// TimeLayout is the layout of the Time column.
	TimeLayout = "15:04:05"

	// DefaultSummaryDays is the look-back window for attendance summaries.
	DefaultSummaryDays = 30

	// MaxSummaryDays bounds the range of one attendance summary (about ten years).
	MaxSummaryDays = 3660
)

// Handler constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// JobRetention is how long finished jobs stay queryable.
	JobRetention = time.Hour
)
