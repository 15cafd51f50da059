package params

import "time"

const (
	APIVersion = "1.0"

	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	HealthCheckServerAddr = ":3001" // health check server address

	// storage key prefixes
	RateLimitKeyPrefix = "rl:"
	CSRFKeyPrefix      = "csrf:"

	// session lifecycle
	SessionTokenLength      = 32               // random bytes per session token
	SessionInactivityMaxAge = 30 * time.Minute // destroy session after this much idle time
	SessionAbsoluteMaxAge   = 24 * time.Hour   // hard ceiling regardless of activity
	SessionRefreshThreshold = 5 * time.Minute  // rotate token when less than this remains
	SessionCleanupInterval  = 1 * time.Hour    // background sweep for expired rows

	// account lockout
	LockoutMaxAttempts   = 5                // failed logins within the window before locking
	LockoutWindow        = 15 * time.Minute // trailing window; also the lockout duration
	FailedLoginRetention = 30 * 24 * time.Hour
	AuditLogRetention    = 90 * 24 * time.Hour

	// CSRF double-submit tokens
	CSRFTokenLength     = 32 // random bytes per token
	CSRFTokenExpiration = 24 * time.Hour
	CSRFHeaderName      = "X-CSRF-Token"
	CSRFCookieName      = "csrf_token"

	SessionCookieName = "session_token"

	// TOTP / backup codes
	MFAIssuer           = "PICORTEX AI"
	MFADigits           = 6
	MFAPeriod           = 30 // seconds per TOTP step
	MFASkew             = 2  // accepted steps of clock drift either side
	MFABackupCodeCount  = 10
	MFABackupCodeLength = 8 // hex chars, rendered as XXXX-XXXX

	// password policy defaults
	PasswordMinLength     = 12
	PasswordMaxScore      = 5
	GeneratedPasswordSize = 16
)
