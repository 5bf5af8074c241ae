package ragd

import "fmt"

// APIError is a non-2xx response from the ragd API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ragd: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Well-known API error codes.
const (
	CodeBadRequest            = "bad_request"
	CodeInvalidFilter         = "invalid_filter"
	CodeUnsupportedMode       = "unsupported_mode"
	CodeUnsupportedPlugin     = "unsupported_plugin"
	CodeDuplicatePlugin       = "duplicate_plugin"
	CodeNoRetrievableContent  = "no_retrievable_content"
	CodeKeywordNotSupported   = "keyword_search_not_supported"
	CodePostprocessFailed     = "postprocess_failed"
	CodeProviderError         = "provider_error"
	CodeUnauthorized          = "unauthorized"
	CodeInternalError         = "internal_error"
)
