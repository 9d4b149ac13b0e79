package errors

// ErrorCode is a stable machine-readable identifier for a failure class.
type ErrorCode string

// Error codes for the failure taxonomy surfaced by the CLI.
const (
	CodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"
	CodeOriginMismatch   ErrorCode = "ORIGIN_MISMATCH"
	CodeMalformedState   ErrorCode = "MALFORMED_STATE"
	CodeMissingMeeting   ErrorCode = "MISSING_MEETING"
	CodeStorageWrite     ErrorCode = "STORAGE_WRITE"
	CodeRedundantStop    ErrorCode = "REDUNDANT_STOP"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeTransportFailure: {
		Code:            CodeTransportFailure,
		Retryable:       true,
		Description:     "Message to the peer process could not be delivered",
		SuggestedAction: "The next action re-sends state naturally; check the popout is running and redis is reachable: airtime meeting status",
	},
	CodeOriginMismatch: {
		Code:            CodeOriginMismatch,
		Retryable:       false,
		Description:     "Message carried a session token that does not match this meeting",
		SuggestedAction: "No action needed; the message was discarded. A stale popout from an earlier meeting may still be running",
	},
	CodeMalformedState: {
		Code:            CodeMalformedState,
		Retryable:       false,
		Description:     "Persisted meeting data could not be decoded",
		SuggestedAction: "Start a new meeting with: airtime setup",
	},
	CodeMissingMeeting: {
		Code:            CodeMissingMeeting,
		Retryable:       false,
		Description:     "No meeting in progress and no setup data available",
		SuggestedAction: "Run: airtime setup",
	},
	CodeStorageWrite: {
		Code:            CodeStorageWrite,
		Retryable:       true,
		Description:     "Writing meeting data to the local store failed",
		SuggestedAction: "Check free disk space and permissions on the data directory: airtime config show",
	},
	CodeRedundantStop: {
		Code:            CodeRedundantStop,
		Retryable:       false,
		Description:     "Pause or stop arrived while no speaker was running",
		SuggestedAction: "No action needed; redundant stops are no-ops",
	},
}

// Info returns the registry entry for a code, or a zero entry for unknown codes.
func Info(code ErrorCode) ErrorCodeInfo {
	return ErrorCodeRegistry[code]
}
