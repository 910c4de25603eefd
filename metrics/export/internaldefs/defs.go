package internaldefs

import (
	goTasks "github.com/MrEthical07/goTasks"
)

// CounterDef names one engine counter for every exporter.
type CounterDef struct {
	ID   goTasks.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for every exporter.
type HistogramDef struct {
	ID   goTasks.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goTasks.MetricSignupSuccess, Name: "gotasks_signup_success_total", Help: "Accounts created."},
	{ID: goTasks.MetricSignupFailure, Name: "gotasks_signup_failure_total", Help: "Rejected signups."},
	{ID: goTasks.MetricLoginSuccess, Name: "gotasks_login_success_total", Help: "Successful login attempts."},
	{ID: goTasks.MetricLoginFailure, Name: "gotasks_login_failure_total", Help: "Failed login attempts."},
	{ID: goTasks.MetricRefreshSuccess, Name: "gotasks_refresh_success_total", Help: "Access tokens minted from a refresh session."},
	{ID: goTasks.MetricRefreshFailure, Name: "gotasks_refresh_failure_total", Help: "Refresh sessions rejected by validation."},
	{ID: goTasks.MetricSessionCreated, Name: "gotasks_session_created_total", Help: "Refresh sessions created."},
	{ID: goTasks.MetricSessionRevoked, Name: "gotasks_session_revoked_total", Help: "Refresh sessions removed by logout or password change."},
	{ID: goTasks.MetricLogout, Name: "gotasks_logout_total", Help: "Logout operations."},
	{ID: goTasks.MetricCSRFRejected, Name: "gotasks_csrf_rejected_total", Help: "Requests rejected by the CSRF check."},
	{ID: goTasks.MetricRateLimitHit, Name: "gotasks_rate_limit_hit_total", Help: "Auth requests denied by the rate limiter."},
	{ID: goTasks.MetricTokenInvalid, Name: "gotasks_access_token_invalid_total", Help: "Access tokens that failed verification."},
	{ID: goTasks.MetricPasswordChange, Name: "gotasks_password_change_total", Help: "Successful password changes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goTasks.MetricVerifyLatency, Name: "gotasks_access_token_verify_seconds", Help: "Access-token verification latency."},
}

// AuditDroppedName and AuditDroppedHelp describe the dispatcher drop counter.
const (
	AuditDroppedName = "gotasks_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
