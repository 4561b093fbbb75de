package errorsx

// Kind is a coarse machine-readable error classification.
type Kind string

const (
	KindUnknown Kind = "unknown"

	// KindValidation marks malformed credentials or configuration,
	// detected before any I/O.
	KindValidation Kind = "validation"

	// KindAuthentication marks a signature rejected by the remote service.
	KindAuthentication Kind = "authentication"

	// KindLifecycle marks an operation invoked in a session phase that
	// forbids it.
	KindLifecycle Kind = "lifecycle"

	// KindTransport marks a connection that failed to open or closed
	// unexpectedly.
	KindTransport Kind = "transport"

	// KindProtocol marks a frame that could not be decoded or was
	// semantically invalid.
	KindProtocol Kind = "protocol"

	// KindTimeout marks a gated operation whose acknowledgment did not
	// arrive in time.
	KindTimeout Kind = "timeout"

	// KindServer marks an error reported by the service itself, either as
	// an error frame or an API error envelope.
	KindServer Kind = "server"
)

// Code is a numeric error code. SDK-originated codes live in the 1001..1010
// range; error frames from the service carry their own codes verbatim.
type Code int

const (
	CodeInvalidParam   Code = 1001
	CodeConnectFailed  Code = 1002
	CodeWriteFailed    Code = 1003
	CodeReadFailed     Code = 1004
	CodeAuthFailed     Code = 1005
	CodeTimeout        Code = 1006
	CodeServerError    Code = 1007
	CodeAlreadyStarted Code = 1008
	CodeNotStarted     Code = 1009
	CodeAlreadyStopped Code = 1010
)
