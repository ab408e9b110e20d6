// Package errors defines the typed failure kinds shared across codeaudit components.
//
// Components return *Error values for failures that cross a component
// boundary, so the engine, the CLI, and the MCP server can react to the kind
// of failure rather than to its message.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is a stable code for a class of failure.
type Kind string

const (
	// SourceUnavailable means the repository could not be cloned, read, or enumerated.
	SourceUnavailable Kind = "SOURCE_UNAVAILABLE"
	// AnalyzerFailure means one analyzer failed on one file.
	AnalyzerFailure Kind = "ANALYZER_FAILURE"
	// RetrievalEmpty means no context relevant to a question was found.
	RetrievalEmpty Kind = "RETRIEVAL_EMPTY"
	// IndexStoreUnavailable means the semantic collection store cannot be reached.
	IndexStoreUnavailable Kind = "INDEX_STORE_UNAVAILABLE"
	// ModelTimeout means the language model or embedder did not answer in time.
	ModelTimeout Kind = "MODEL_TIMEOUT"
	// InvalidInput means a request was malformed.
	InvalidInput Kind = "INVALID_INPUT"
	// UnsupportedFileType means an upload contained nothing analyzable.
	UnsupportedFileType Kind = "UNSUPPORTED_FILE_TYPE"
	// NotFound means an analysis id or other addressed resource does not exist.
	NotFound Kind = "NOT_FOUND"
	// CollectionNotFound means a named collection has never been indexed.
	CollectionNotFound Kind = "COLLECTION_NOT_FOUND"
	// Busy means a conflicting operation, such as indexing the same collection, is running.
	Busy Kind = "BUSY"
	// Internal is an unexpected failure.
	Internal Kind = "INTERNAL_ERROR"
)

// Error is a failure with a stable kind.
type Error struct {
	Kind    Kind        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause. A nil cause yields nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or Internal
// when err carries no kind. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.cause
	}
	return false
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case ModelTimeout, IndexStoreUnavailable, Busy:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind onto the status code a web surface should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, UnsupportedFileType:
		return http.StatusBadRequest
	case NotFound, CollectionNotFound:
		return http.StatusNotFound
	case SourceUnavailable:
		return http.StatusUnprocessableEntity
	case Busy:
		return http.StatusConflict
	case ModelTimeout:
		return http.StatusGatewayTimeout
	case RetrievalEmpty:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// JSON-RPC error codes used by the MCP server.
const (
	CodeInvalidParams = -32602
	CodeInternalError = -32603
	CodeSourceError   = -32001
	CodeNotFound      = -32002
	CodeIndexingBusy  = -32003
	CodeStoreError    = -32004
	CodeModelTimeout  = -32005
)

// MCPCode maps a kind onto a JSON-RPC error code.
func MCPCode(kind Kind) int {
	switch kind {
	case InvalidInput, UnsupportedFileType:
		return CodeInvalidParams
	case SourceUnavailable:
		return CodeSourceError
	case NotFound, CollectionNotFound:
		return CodeNotFound
	case Busy:
		return CodeIndexingBusy
	case IndexStoreUnavailable:
		return CodeStoreError
	case ModelTimeout:
		return CodeModelTimeout
	default:
		return CodeInternalError
	}
}
