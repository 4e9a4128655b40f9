package service

import "errors"

// Domain errors surfaced by the trust engine. The HTTP layer maps these to
// status codes; nothing in here leaks grant or key detail to callers.
var (
	// ErrPrincipalNotAssociated means no grant path exists for the
	// authenticating IAM principal: not its ARN, not its base role, and not
	// its account root.
	ErrPrincipalNotAssociated = errors.New("IAM principal is not associated with any secret container")

	// ErrAuthenticationRejected means the cloud rejected the principal
	// during key provisioning, typically a deleted or malformed role.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrTokenTooLarge means the encoded token exceeded the configured
	// ceiling. Internal: triggers metadata truncation, not surfaced.
	ErrTokenTooLarge = errors.New("encoded token exceeds size ceiling")

	// ErrMaxRefreshExceeded means the principal has used up its refresh
	// allowance and must re-authenticate.
	ErrMaxRefreshExceeded = errors.New("token refresh limit reached")

	// ErrRefreshNotAllowed means the principal type cannot refresh tokens.
	ErrRefreshNotAllowed = errors.New("token refresh not allowed for this principal")

	// ErrAccessDenied is the deliberately generic authorization failure.
	ErrAccessDenied = errors.New("access denied")
)
