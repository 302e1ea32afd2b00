package domain

// UploadStatus classifies the outcome of a single upload.
type UploadStatus string

const (
	UploadStatusAccepted        UploadStatus = "accepted"
	UploadStatusRejected        UploadStatus = "rejected"
	UploadStatusTransportFailed UploadStatus = "transport_failed"
)

// KeyState is the per-key state reported by a polling run.
type KeyState string

const (
	KeyStateResolved     KeyState = "resolved"
	KeyStateStillPending KeyState = "still_pending"
	KeyStateFailed       KeyState = "failed"
)

// FailureKind explains why a key stopped being polled.
type FailureKind string

const (
	FailureStatus    FailureKind = "unexpected_status"
	FailureMalformed FailureKind = "malformed_response"
)

// ExportFormat enumerates the download formats of the results table.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
)
