package shared

import "github.com/Sato-Isolated/uploadhaven-sub006/internal/common"

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidInput          = "invalidInput"
	CodeUnauthorized          = "unauthorized"
	CodeForbidden             = "forbidden"
	CodeNotFound              = "notFound"
	CodeExpired               = "expired"
	CodeDownloadLimitExceeded = "downloadLimitExceeded"
	CodePasswordRequired      = "passwordRequired"
	CodeInvalidPassword       = "invalidPassword"
	CodeRateLimitExceeded     = "rateLimitExceeded"
	CodePreviewUnavailable    = "previewUnavailable"
	CodeInternal              = "internal"
)

var codeErrors = map[string]error{
	CodeInvalidInput:          common.ErrInvalidInput,
	CodeUnauthorized:          common.ErrorUnauthorized,
	CodeForbidden:             common.ErrorForbidden,
	CodeNotFound:              common.ErrorNotFound,
	CodeExpired:               common.ErrExpired,
	CodeDownloadLimitExceeded: common.ErrDownloadLimitExceeded,
	CodePasswordRequired:      common.ErrPasswordRequired,
	CodeInvalidPassword:       common.ErrInvalidPassword,
	CodeRateLimitExceeded:     common.ErrRateLimitExceeded,
	CodeInternal:              common.ErrorInternal,
}

// ErrorForCode maps a wire code back to its sentinel. Unknown codes map to
// common.ErrorInternal.
func ErrorForCode(code string) error {
	if err, ok := codeErrors[code]; ok {
		return err
	}
	return common.ErrorInternal
}
