package api

import (
	"fmt"
	"time"
)

// FailureKind classifies a search attempt for fallback decisions. The
// orchestrator branches on this tag, never on rendered markdown; the
// markdown is derived once, at the boundary.
type FailureKind int

const (
	// FailureNone marks a successful outcome.
	FailureNone FailureKind = iota
	// FailureAuth covers 401/403 responses and refresh failures.
	FailureAuth
	// FailureRateLimited covers 429 responses.
	FailureRateLimited
	// FailureCapacity covers 503 and explicit capacity-exhausted bodies;
	// it advances to the next endpoint within a provider.
	FailureCapacity
	// FailureTimeout covers requests cancelled by the call deadline.
	FailureTimeout
	// FailureNetwork covers transport-level errors.
	FailureNetwork
	// FailureUpstream covers every other non-2xx or embedded error object.
	FailureUpstream
	// FailureProjectSetup marks a provider whose required project id could
	// not be resolved.
	FailureProjectSetup
)

// Outcome is the typed result of one search attempt against one
// provider/endpoint pair.
type Outcome struct {
	Provider string
	Model    string
	Kind     FailureKind
	Status   int
	Message  string
	Timeout  time.Duration
	Result   *SearchResult
}

// Success reports whether the attempt produced a parsed result.
func (o *Outcome) Success() bool {
	return o.Kind == FailureNone
}

// EndpointAdvance reports whether the failure should try the provider's next
// endpoint (capacity or quota pressure) rather than the next provider.
func (o *Outcome) EndpointAdvance() bool {
	return o.Kind == FailureCapacity || o.Kind == FailureRateLimited
}

// Reason returns a short human-readable failure tag used to annotate a
// fallback response, e.g. "429 (rate limited)".
func (o *Outcome) Reason() string {
	switch o.Kind {
	case FailureAuth:
		if o.Status != 0 {
			return fmt.Sprintf("%d (authentication error)", o.Status)
		}
		return "authentication error"
	case FailureRateLimited:
		return "429 (rate limited)"
	case FailureCapacity:
		if o.Status != 0 {
			return fmt.Sprintf("%d (no capacity)", o.Status)
		}
		return "no capacity"
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network error"
	case FailureProjectSetup:
		return "project setup required"
	default:
		if o.Status != 0 {
			return fmt.Sprintf("%d (upstream error)", o.Status)
		}
		return "upstream error"
	}
}

// Markdown renders the outcome for the tool caller. Failure sections carry a
// machine-matchable heading plus remediation steps; a success renders the
// parsed result.
func (o *Outcome) Markdown() string {
	switch o.Kind {
	case FailureNone:
		return FormatSearchResult(*o.Result)

	case FailureTimeout:
		return fmt.Sprintf(`## Search Timeout

The search request timed out after %d seconds.

**What to do:**
- Try a simpler or more specific query
- Check your internet connection
- Try again in a few moments`, int(o.Timeout.Seconds()))

	case FailureNetwork:
		return fmt.Sprintf(`## Network Error

Could not connect to the %s API.

**What to do:**
- Check your internet connection
- Verify you can reach Google services
- Try again in a few moments`, providerDisplayName(o.Provider))

	case FailureProjectSetup:
		return fmt.Sprintf(`## Project Setup Required

Could not retrieve your %s project ID.

**To fix:**
1. Ensure you have a valid Google account with Gemini access
2. Try re-authenticating with `+"`auth --login %s`"+`
3. If you're using a Workspace account, set GOOGLE_CLOUD_PROJECT`, providerDisplayName(o.Provider), o.Provider)

	case FailureAuth:
		status := o.Status
		if status == 0 {
			status = 401
		}
		return FormatErrorResponse(status, o.Message, o.Provider)

	default:
		return FormatErrorResponse(o.Status, o.Message, o.Provider)
	}
}
