package serviceerror

// Error codes produced by the client itself. Service-originated errors carry
// whatever code the service sent.
const (
	CodeGeneralException     = "generalException"
	CodeInvalidRequest       = "invalidRequest"
	CodeInvalidArgument      = "invalidArgument"
	CodeItemNotFound         = "itemNotFound"
	CodeMaximumValueExceeded = "maximumValueExceeded"
	CodeNotAllowed           = "notAllowed"
	CodeTimeout              = "timeout"
	CodeTooManyRedirects     = "tooManyRedirects"
	CodeTooManyRetries       = "tooManyRetries"
)

// Messages attached to client-produced errors.
const (
	MsgAuthenticationProviderMissing = "Authentication provider is required before sending a request."
	MsgBaseURLMissing                = "Base URL cannot be null or empty."
	MsgRequestURLMissing             = "Request URL is required to send a request."
	MsgLocationHeaderNotSet          = "Location header not set on redirect"
	MsgOverallTimeoutCannotBeSet     = "Overall timeout cannot be set after the first request is sent."
	MsgRequestTimedOut               = "The request timed out."
	MsgUnexpectedExceptionOnSend     = "An error occurred sending the request."
	MsgUnexpectedExceptionResponse   = "Unexpected exception returned from the service."
	MsgAuthenticationFailed          = "Failed to authenticate the request."
	MsgBaseURLInvalid                = "Base URL must be an absolute http or https URL."
	MsgLocationHeaderInvalid         = "Location header on redirect is not a valid URL."

	// Format strings; the argument is the configured maximum.
	MsgTooManyRedirectsFormat     = "More than %d redirects encountered while sending the request."
	MsgTooManyRetriesFormat       = "More than %d retries encountered while sending the request."
	MsgMaximumValueExceededFormat = "%s exceeds the maximum value of %d."
	MsgInvalidArgumentFormat      = "%s is not a valid value for %s."
)

// Headers read by the translator.
const (
	HeaderThrowSite       = "X-ThrowSite"
	HeaderClientRequestID = "client-request-id"
)
