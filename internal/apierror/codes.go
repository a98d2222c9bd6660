package apierror

// Error type URIs following the urn:habitloop:error:* pattern, used as the
// "type" field in RFC 9457 Problem Details.
const (
	// TypeValidation indicates request validation failed (400)
	TypeValidation = "urn:habitloop:error:validation"

	// TypeNotFound indicates the requested resource was not found (404)
	TypeNotFound = "urn:habitloop:error:not_found"

	// TypeRateLimit indicates too many requests (429)
	TypeRateLimit = "urn:habitloop:error:rate_limit"

	// TypeUnauthorized indicates missing or invalid authentication (401)
	TypeUnauthorized = "urn:habitloop:error:unauthorized"

	// TypeInternal indicates an unexpected server error (500)
	TypeInternal = "urn:habitloop:error:internal"

	// TypeBadRequest indicates a malformed or invalid request (400)
	TypeBadRequest = "urn:habitloop:error:bad_request"
)

// Human-readable titles for each error type
const (
	TitleValidation   = "Validation Error"
	TitleNotFound     = "Resource Not Found"
	TitleRateLimit    = "Rate Limit Exceeded"
	TitleUnauthorized = "Authentication Required"
	TitleInternal     = "Internal Server Error"
	TitleBadRequest   = "Bad Request"
)
