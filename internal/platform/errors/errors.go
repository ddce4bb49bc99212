package errors

import (
	"bytes"
	stderrors "errors"
	"net/http"
	"text/template"
)

// Error is the application error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for templating
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple application error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates an application error with metadata for message templating.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates an application error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithMetadata creates an application error with both metadata and a cause.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
		Cause:    cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HTTPStatus maps an error chain to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return CodeOf(err).HTTPStatus()
}

var userMessages = map[Code]*template.Template{
	CodeInvalidInput:      template.Must(template.New("").Parse("The request is missing required information.")),
	CodeInvalidRole:       template.Must(template.New("").Parse(`"{{.role}}" is not a role that can be granted here.`)),
	CodeUnauthenticated:   template.Must(template.New("").Parse("Sign in to continue.")),
	CodeForbidden:         template.Must(template.New("").Parse("You do not have access to this agency.")),
	CodeDuplicateUser:     template.Must(template.New("").Parse("{{.email}} is already a member.")),
	CodeInvitationExists:  template.Must(template.New("").Parse("{{.email}} already has a pending invitation.")),
	CodeIdentityInUse:     template.Must(template.New("").Parse("This account already belongs to a team under a different email address.")),
	CodePropagationFailed: template.Must(template.New("").Parse("Your membership was saved but your access is still being set up. Try again shortly.")),
	CodeAttributionFailed: template.Must(template.New("").Parse("The activity could not be attributed to a user.")),
	CodeNotFound:          template.Must(template.New("").Parse("Not found.")),
}

// UserMessage renders the user-facing message for err. Internal messages and
// causes never leak through it.
func UserMessage(err error) string {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return "Something went wrong."
	}
	tmpl, ok := userMessages[appErr.Code]
	if !ok {
		return "Something went wrong."
	}
	var buf bytes.Buffer
	data := appErr.Metadata
	if data == nil {
		data = map[string]string{}
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return string(appErr.Code)
	}
	return buf.String()
}
