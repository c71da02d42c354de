// Package changetip is a client for the ChangeTip v2 REST API.
//
// Every request carries the bearer token held in a tokenstore.TokenStore and
// decodes a JSON object response. Failures are reported as one of three error
// kinds, inspected with errors.As:
//   - *AuthError: no access token stored, or the OAuth2 flow failed
//   - *NetworkError: transport failure or non-2xx status
//   - *DecodeError: the response body is not a JSON object
//
// Nothing is retried. A caller receiving a 401 (see IsUnauthorized) may refresh the
// token and issue the call again.
//
// The convenience operations (tip-url, me, balance, ...) are rows of the
// Operations table, invoked by name:
//
//	client, _ := changetip.New(store)
//	balance, err := client.Invoke(ctx, "balance", map[string]string{"currency": changetip.CurrencyBTC})
package changetip
