// Package apiclient provides the authenticated HTTP client for the Hublead
// REST API.
//
// The client is deliberately thin: JSON in, raw JSON out. Retry policy lives
// here (network errors and 5xx with exponential backoff, 4xx never), so
// callers branch only on the typed *APIError / *NetworkError results.
package apiclient
