// Package oauthflow drives the OAuth2 authorization-code grant and token refresh
// for the ChangeTip API, persisting the resulting token pair in a tokenstore.TokenStore.
//
// ChangeTip expects client credentials in the token request body rather than HTTP
// Basic authentication, so Endpoint pins oauth2.AuthStyleInParams.
//
// # Flow
//
//	auth, _ := oauthflow.New(oauthflow.Config{ClientID: id, RedirectURI: redirect}, store)
//	authURL := auth.BeginAuthorization()
//	// open authURL in a browser; the provider redirects to the redirect URI
//	err := auth.CompleteAuthorization(ctx, redirectURL)
//
// Refresh obtains a new pair from the stored refresh token. Exchange and refresh
// are serialized, so two concurrent refreshes never race on the stored pair.
package oauthflow
