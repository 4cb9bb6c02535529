// Package llm talks to an OpenAI-compatible chat completion endpoint and uses
// it to reformat raw transcripts.
//
// # Entry Points
//
// NewClient: construct a client from Config (or FromConfig).
// Client.CompleteText: send system/user prompts, receive the reply text.
// Client.HealthCheck: verify the API key and model are usable.
// Formatter.Reformat: punctuation and paragraph cleanup of transcript text.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx responses, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). A Retry-After header overrides the backoff.
// Context cancellation aborts retries immediately.
//
// # Fallback
//
// Reformatting is optional. When no API key is configured the daemon runs
// without a Formatter and transcripts are delivered unformatted.
package llm
