// Package clientcredentials acquires OAuth2 access tokens with the client
// credentials grant and attaches them to outgoing HTTP requests.
//
// Authorization servers disagree on how client credentials are presented, so
// the token request comes in three shapes:
//   - ModeBasic: HTTP Basic Authorization header, form-encoded grant parameters
//   - ModeForm: client_id and client_secret as form-encoded body parameters
//   - ModeJSON: the same parameters as a JSON object
//
// Every call performs exactly one token request. Nothing is cached, refreshed
// or retried; failures surface as *ConfigurationError, *TransportError,
// *TokenError or *MalformedResponseError.
//
// # Authorizing Requests
//
//	a, err := clientcredentials.New(
//	  clientcredentials.Credentials{ClientID: id, ClientSecret: secret},
//	  clientcredentials.Options{TokenEndpoint: tokenURL, Mode: clientcredentials.ModeForm},
//	)
//	if err != nil {
//	  return err
//	}
//	err = a.Authorize(ctx, req)
//
// # Transport
//
// Transport wraps any http.RoundTripper and authorizes each request it sends:
//
//	client := &http.Client{Transport: clientcredentials.NewTransport(a, nil)}
package clientcredentials
