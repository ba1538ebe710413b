package model

// Column names as they appear in the table headers. All components consume
// and produce these verbatim.
const (
	ColID         = "ID"
	ColURL        = "URL"
	ColStatus     = "Status"
	ColClaimedBy  = "ClaimedBy"
	ColClaimedAt  = "ClaimedAt"
	ColRetryCount = "RetryCount"
	ColLastError  = "LastError"

	// Source metadata columns, opaque to the protocol.
	ColName                   = "Name"
	ColGender                 = "Gender"
	ColAccent                 = "Accent"
	ColContentType            = "ContentType"
	ColType                   = "Type"
	ColMultispeakerPercentage = "MultispeakerPercentage"

	// Video task columns.
	ColSourceID = "SourceID"
	ColDuration = "Duration"

	// Worker columns.
	ColHostname = "Hostname"
	ColLastSeen = "LastSeen"
)

// SourceColumns is the Sources table header, in order.
var SourceColumns = []string{
	ColID, ColURL, ColStatus, ColClaimedBy, ColClaimedAt,
	ColName, ColGender, ColAccent, ColContentType, ColType,
	ColMultispeakerPercentage, ColRetryCount, ColLastError,
}

// VideoTaskColumns is the Video Tasks table header, in order.
var VideoTaskColumns = []string{
	ColID, ColSourceID, ColURL, ColStatus, ColDuration,
	ColClaimedBy, ColClaimedAt, ColRetryCount, ColLastError,
}

// WorkerColumns is the Workers table header, in order.
var WorkerColumns = []string{ColHostname, ColLastSeen, ColStatus}

// sourceCoreColumns are the Sources columns owned by the protocol; anything
// else on a source row is caller-defined metadata and rides through
// untouched.
var sourceCoreColumns = map[string]bool{
	ColID:         true,
	ColURL:        true,
	ColStatus:     true,
	ColClaimedBy:  true,
	ColClaimedAt:  true,
	ColRetryCount: true,
	ColLastError:  true,
}
