package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeConfigInvalid        ErrCode = "CONFIG_INVALID"
	ErrCodeUnsupportedModelKind ErrCode = "UNSUPPORTED_MODEL_KIND"
	ErrCodeCheckpointInvalid    ErrCode = "CHECKPOINT_INVALID"
	ErrCodeRepositoryCreation   ErrCode = "REPOSITORY_CREATION"
	ErrCodeRepositoryExists     ErrCode = "REPOSITORY_EXISTS"
	ErrCodeUnauthorized         ErrCode = "UNAUTHORIZED"
	ErrCodePublish              ErrCode = "PUBLISH"
	ErrCodeLFSObjectRejected    ErrCode = "LFS_OBJECT_REJECTED"
	ErrCodeSourceNotFound       ErrCode = "SOURCE_NOT_FOUND"
	ErrCodeUnknow               ErrCode = "UNKNOWN"
	ErrCodeInternal             ErrCode = "INTERNAL"
)

type ErrCode string

type ErrorInfo struct {
	HttpStatus int     `json:"-"`
	Code       ErrCode `json:"code"`
	Message    string  `json:"message"`
	Detail     string  `json:"detail,omitempty"`

	cause error
}

func (e ErrorInfo) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e ErrorInfo) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error.
func (e ErrorInfo) WithCause(err error) ErrorInfo {
	e.cause = err
	return e
}

func IsErrCode(err error, code ErrCode) bool {
	if err == nil {
		return false
	}
	info := ErrorInfo{}
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

func NewConfigInvalidError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeConfigInvalid, Message: msg}
}

func NewUnsupportedModelKindError(kind string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeUnsupportedModelKind, Message: fmt.Sprintf("unsupported model kind: %q", kind)}
}

func NewCheckpointInvalidError(path string, err error) ErrorInfo {
	return ErrorInfo{Code: ErrCodeCheckpointInvalid, Message: fmt.Sprintf("checkpoint %s", path), cause: err}
}

// NewRepositoryCreationError maps a hosting API failure on repository creation to an error code.
// A conflict means the repository is already there.
func NewRepositoryCreationError(status int, repository string, msg string) ErrorInfo {
	code := ErrCodeRepositoryCreation
	switch status {
	case http.StatusConflict:
		code = ErrCodeRepositoryExists
	case http.StatusUnauthorized, http.StatusForbidden:
		code = ErrCodeUnauthorized
	}
	return ErrorInfo{HttpStatus: status, Code: code, Message: fmt.Sprintf("create repository %s", repository), Detail: msg}
}

func NewUnauthorizedError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: msg}
}

func NewPublishError(repository string, err error) ErrorInfo {
	return ErrorInfo{Code: ErrCodePublish, Message: fmt.Sprintf("publish %s", repository), cause: err}
}

func NewLFSObjectRejectedError(oid string, code int, msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: code, Code: ErrCodeLFSObjectRejected, Message: fmt.Sprintf("lfs object %s rejected: %s", oid, msg)}
}

func NewSourceNotFoundError(uri string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusNotFound, Code: ErrCodeSourceNotFound, Message: fmt.Sprintf("source: %s not found", uri)}
}

func NewInternalError(err error) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusInternalServerError, Code: ErrCodeInternal, Message: err.Error()}
}
