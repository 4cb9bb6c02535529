// Package language normalizes the recognition language requested for a job.
//
// Callers may pass "auto", an ISO 639-1 or 639-2 code, a BCP 47 tag such as
// "en-US", or an English language name. Everything except "auto" resolves to
// the two-letter code the recognition engine expects.
package language
