// Package callback receives the OAuth2 redirect on a loopback HTTP listener.
//
// The server answers exactly one redirect: the first request to the redirect path
// is handed to the completion function and its outcome is published on Result.
// Later requests get 410 Gone.
package callback
