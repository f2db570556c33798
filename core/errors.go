package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LinkErrorMissingHandler     = "LINK_MISSING_HANDLER"
	LinkErrorMissingParameter   = "LINK_MISSING_PARAMETER"
	LinkErrorBadConfig          = "LINK_BAD_CONFIG"
	LinkErrorMissingCode        = "LINK_MISSING_CODE"
	LinkErrorAttemptNotFound    = "LINK_ATTEMPT_NOT_FOUND"
	LinkErrorAttemptConflict    = "LINK_ATTEMPT_CONFLICT"
	LinkErrorBadQuery           = "LINK_BAD_QUERY"
	LinkErrorHookFailed         = "LINK_HOOK_FAILED"
	LinkErrorHookTimeout        = "LINK_HOOK_TIMEOUT"
	LinkErrorHookCanceled       = "LINK_HOOK_CANCELED"
	LinkErrorPersistenceFailed  = "LINK_PERSISTENCE_FAILED"
	LinkErrorDispatchFailed     = "LINK_DISPATCH_FAILED"
	LinkErrorInternal           = "LINK_INTERNAL_ERROR"
	linkErrorHookNotConfigured  = "LINK_HOOK_NOT_CONFIGURED"
	linkErrorMetadataHookKey    = "hook"
	linkErrorMetadataFieldKey   = "field"
	linkErrorMetadataCodeKey    = "correlation_code"
	linkErrorMetadataPhaseKey   = "phase"
	linkErrorMetadataStoreOpKey = "operation"

	// statusClientClosedRequest is the non-standard 499 used by proxies when
	// the client went away before a response was written.
	statusClientClosedRequest = 499
)

func MissingHandlerError(name string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("Specify `%s` handler", name), goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(LinkErrorMissingHandler).
		WithMetadata(map[string]any{linkErrorMetadataFieldKey: name})
}

func MissingParameterError(name string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("Specify `%s` parameter", name), goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(LinkErrorMissingParameter).
		WithMetadata(map[string]any{linkErrorMetadataFieldKey: name})
}

func badConfigError(name string, message string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("Invalid `%s` parameter: %s", name, message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(LinkErrorBadConfig).
		WithMetadata(map[string]any{linkErrorMetadataFieldKey: name})
}

// MissingCodeError maps to 409 so a client restarts the flow.
func MissingCodeError(phase string) *goerrors.Error {
	return goerrors.New("core: code parameter is required", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(LinkErrorMissingCode).
		WithMetadata(map[string]any{linkErrorMetadataPhaseKey: phase})
}

func LookupNotFoundError(code string) *goerrors.Error {
	return goerrors.New("core: link attempt is unknown or expired", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(LinkErrorAttemptNotFound).
		WithMetadata(map[string]any{linkErrorMetadataCodeKey: code})
}

func attemptConflictError(code string, source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryConflict, "core: link attempt already exists for code").
		WithCode(http.StatusConflict).
		WithTextCode(LinkErrorAttemptConflict).
		WithMetadata(map[string]any{linkErrorMetadataCodeKey: code})
}

func badQueryError(source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryBadInput, "core: invalid lookup query").
		WithCode(http.StatusBadRequest).
		WithTextCode(LinkErrorBadQuery)
}

// HookError wraps a hook failure. A hook returning its own go-errors value
// keeps it, so a host can pick the response status.
func HookError(name string, source error) *goerrors.Error {
	var rich *goerrors.Error
	if errors.As(source, &rich) && rich != nil {
		return ensureLinkErrorEnvelope(rich)
	}
	return goerrors.Wrap(source, goerrors.CategoryOperation, fmt.Sprintf("core: hook `%s` failed", name)).
		WithCode(http.StatusInternalServerError).
		WithTextCode(LinkErrorHookFailed).
		WithMetadata(map[string]any{linkErrorMetadataHookKey: name})
}

func HookTimeoutError(name string, source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryOperation, fmt.Sprintf("core: hook `%s` did not complete", name)).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(LinkErrorHookTimeout).
		WithMetadata(map[string]any{linkErrorMetadataHookKey: name})
}

// HookCanceledError reports a hook abandoned because the request context
// was canceled, typically a client disconnect.
func HookCanceledError(name string, source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryOperation, fmt.Sprintf("core: hook `%s` was canceled", name)).
		WithCode(statusClientClosedRequest).
		WithTextCode(LinkErrorHookCanceled).
		WithMetadata(map[string]any{linkErrorMetadataHookKey: name})
}

func PersistenceError(operation string, source error) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryInternal, fmt.Sprintf("core: %s failed", operation)).
		WithCode(http.StatusInternalServerError).
		WithTextCode(LinkErrorPersistenceFailed).
		WithMetadata(map[string]any{linkErrorMetadataStoreOpKey: operation})
}

func errHookNotConfigured(name string) error {
	return goerrors.New(fmt.Sprintf("core: hook `%s` is not configured", name), goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(linkErrorHookNotConfigured).
		WithMetadata(map[string]any{linkErrorMetadataHookKey: name})
}

func IsMissingHandler(err error) bool { return hasTextCode(err, LinkErrorMissingHandler) }

func IsMissingParameter(err error) bool { return hasTextCode(err, LinkErrorMissingParameter) }

func IsMissingCode(err error) bool { return hasTextCode(err, LinkErrorMissingCode) }

func IsLookupNotFound(err error) bool { return hasTextCode(err, LinkErrorAttemptNotFound) }

func IsHookError(err error) bool {
	return hasTextCode(err, LinkErrorHookFailed) ||
		hasTextCode(err, LinkErrorHookTimeout) ||
		hasTextCode(err, LinkErrorHookCanceled)
}

func IsHookTimeout(err error) bool { return hasTextCode(err, LinkErrorHookTimeout) }

func IsHookCanceled(err error) bool { return hasTextCode(err, LinkErrorHookCanceled) }

func IsPersistenceError(err error) bool { return hasTextCode(err, LinkErrorPersistenceFailed) }

// IsConfigError reports startup-time configuration failures.
func IsConfigError(err error) bool {
	return IsMissingHandler(err) || IsMissingParameter(err) || hasTextCode(err, LinkErrorBadConfig)
}

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich == nil {
		return false
	}
	return rich.TextCode == textCode
}

// HTTPStatus resolves the response status for an engine error.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich == nil {
		return http.StatusInternalServerError
	}
	if rich.Code != 0 {
		return rich.Code
	}
	return linkHTTPStatus(rich.Category)
}

// ErrorEnvelope maps any engine error onto a complete go-errors envelope
// (HTTP code, text code and message set).
func ErrorEnvelope(err error) *goerrors.Error {
	return linkErrorMapper(err)
}

func linkErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return ensureLinkErrorEnvelope(rich)
	}
	switch {
	case errors.Is(err, ErrTempTokenNotFound), errors.Is(err, ErrTokenNotFound):
		return ensureLinkErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()))
	case errors.Is(err, ErrDuplicateCorrelationCode):
		return ensureLinkErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()))
	case errors.Is(err, ErrInvalidQuery):
		return badQueryError(err)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureLinkErrorEnvelope(mapped)
}

func ensureLinkErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = linkHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultLinkTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultLinkTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return LinkErrorBadQuery
	case goerrors.CategoryValidation:
		return LinkErrorBadConfig
	case goerrors.CategoryNotFound:
		return LinkErrorAttemptNotFound
	case goerrors.CategoryConflict:
		return LinkErrorAttemptConflict
	case goerrors.CategoryOperation:
		return LinkErrorHookFailed
	default:
		return LinkErrorInternal
	}
}

func linkHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
