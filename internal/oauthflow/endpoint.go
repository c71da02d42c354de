package oauthflow

import (
	"net/url"

	"golang.org/x/oauth2"
)

// OAuth2 endpoint paths, relative to the API base URL.
const (
	authorizePath = "o/authorize/"
	tokenPath     = "o/token/"
)

// Endpoint returns the OAuth2 endpoints under the given API base URL.
func Endpoint(baseURL string) (oauth2.Endpoint, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return oauth2.Endpoint{}, err
	}

	return oauth2.Endpoint{
		AuthURL:   base.JoinPath(authorizePath).String(),
		TokenURL:  base.JoinPath(tokenPath).String(),
		AuthStyle: oauth2.AuthStyleInParams,
	}, nil
}
