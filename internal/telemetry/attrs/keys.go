// Package attrs defines telemetry attribute keys shared by the tracing and
// metrics middlewares, so spans and instruments use the same names.
package attrs

const (
	// AttrKeyLength is the length of the requested key in bytes.
	AttrKeyLength = "key.len"
	// AttrValueLength is the length of the stored or returned value in bytes.
	AttrValueLength = "value.len"
	// AttrFound reports whether a get found a value.
	AttrFound = "found"
	// AttrMethod is the client method name.
	AttrMethod = "method"
	// AttrErrorKind is the kvs error kind of a failed call.
	AttrErrorKind = "error.kind"
)
