package errors

var (
	// ErrInvalidCredentials covers bad usernames, bad passwords and bad
	// second-factor codes alike.
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid credentials")
	ErrAccountDisabled    = New(CodeAccountDisabled, "account is disabled, please verify your email address")
	ErrTwoFactorRequired  = New(CodeTwoFactorRequired, "two-factor authentication code required")
	ErrTokenInvalid       = New(CodeTokenInvalid, "invalid token")
	ErrTokenExpired       = New(CodeTokenExpired, "token has expired")
	ErrTokenAlreadyUsed   = New(CodeTokenAlreadyUsed, "token has already been used")
	ErrTokenRevoked       = New(CodeTokenRevoked, "token has been revoked")
	ErrUserNotFound       = NotFound("user not found")
	ErrUsernameTaken      = AlreadyExists("username is already taken")
	ErrEmailTaken         = AlreadyExists("email is already registered")
	ErrTwoFactorNotSetUp  = FailedPrecondition("two-factor setup not started")
	ErrLoginBlocked       = New(CodeSuspiciousActivity, "sign-in blocked due to unusual activity, check your email")
	ErrRateLimited        = New(CodeRateLimited, "too many attempts")
)
