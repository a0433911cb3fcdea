package clientcredentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://auth.example.com/oauth/token"

func TestBuildRequest_Basic(t *testing.T) {
	tests := []struct {
		name   string
		creds  Credentials
		scope  string
		expect url.Values
	}{
		{
			name:   "without scope",
			creds:  Credentials{ClientID: "client", ClientSecret: "secret"},
			expect: url.Values{"grant_type": {"client_credentials"}},
		},
		{
			name:   "with scope",
			creds:  Credentials{ClientID: "client", ClientSecret: "secret"},
			scope:  "read write",
			expect: url.Values{"grant_type": {"client_credentials"}, "scope": {"read write"}},
		},
		{
			name:   "credentials with reserved characters",
			creds:  Credentials{ClientID: "my client:id", ClientSecret: "s3cr&t=+/"},
			expect: url.Values{"grant_type": {"client_credentials"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := BuildRequest(tt.creds, Options{TokenEndpoint: testEndpoint, Mode: ModeBasic, Scope: tt.scope})
			require.NoError(t, err)

			require.Equal(t, http.MethodPost, tr.Method)
			require.Equal(t, testEndpoint, tr.Endpoint)
			require.Equal(t, "application/x-www-form-urlencoded", tr.Header.Get("Content-Type"))

			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(tt.creds.ClientID+":"+tt.creds.ClientSecret))
			require.Equal(t, want, tr.Header.Get("Authorization"))

			form, err := url.ParseQuery(string(tr.Body))
			require.NoError(t, err)
			require.Equal(t, tt.expect, form)

			require.NotContains(t, string(tr.Body), "client_id")
			require.NotContains(t, string(tr.Body), "client_secret")
			require.NotContains(t, string(tr.Body), url.QueryEscape(tt.creds.ClientSecret))
		})
	}
}

func TestBuildRequest_Form(t *testing.T) {
	creds := Credentials{ClientID: "client", ClientSecret: "secret"}

	tr, err := BuildRequest(creds, Options{TokenEndpoint: testEndpoint, Mode: ModeForm})
	require.NoError(t, err)
	require.Equal(t, "application/x-www-form-urlencoded", tr.Header.Get("Content-Type"))
	require.Empty(t, tr.Header.Get("Authorization"))

	form, err := url.ParseQuery(string(tr.Body))
	require.NoError(t, err)
	require.Equal(t, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"client"},
		"client_secret": {"secret"},
	}, form)

	tr, err = BuildRequest(creds, Options{TokenEndpoint: testEndpoint, Mode: ModeForm, Scope: "openid"})
	require.NoError(t, err)
	form, err = url.ParseQuery(string(tr.Body))
	require.NoError(t, err)
	require.Equal(t, "openid", form.Get("scope"))
	require.Len(t, form, 4)
}

func TestBuildRequest_JSON(t *testing.T) {
	creds := Credentials{ClientID: "client", ClientSecret: "secret"}

	tests := []struct {
		name   string
		scope  string
		expect map[string]any
	}{
		{
			name: "without scope",
			expect: map[string]any{
				"grant_type":    "client_credentials",
				"client_id":     "client",
				"client_secret": "secret",
			},
		},
		{
			name:  "with scope",
			scope: "openid profile",
			expect: map[string]any{
				"grant_type":    "client_credentials",
				"client_id":     "client",
				"client_secret": "secret",
				"scope":         "openid profile",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := BuildRequest(creds, Options{TokenEndpoint: testEndpoint, Mode: ModeJSON, Scope: tt.scope})
			require.NoError(t, err)
			require.Equal(t, "application/json", tr.Header.Get("Content-Type"))
			require.Empty(t, tr.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(tr.Body, &body))
			require.Equal(t, tt.expect, body)
		})
	}
}

func TestBuildRequest_FormAndJSONShareKeySet(t *testing.T) {
	creds := Credentials{ClientID: "client", ClientSecret: "secret"}
	opts := Options{TokenEndpoint: testEndpoint, Scope: "openid"}

	opts.Mode = ModeForm
	formReq, err := BuildRequest(creds, opts)
	require.NoError(t, err)
	form, err := url.ParseQuery(string(formReq.Body))
	require.NoError(t, err)

	opts.Mode = ModeJSON
	jsonReq, err := BuildRequest(creds, opts)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(jsonReq.Body, &body))

	require.Len(t, body, len(form))
	for key := range form {
		require.Equal(t, form.Get(key), body[key], "key %s", key)
	}
}

func TestBuildRequest_Idempotent(t *testing.T) {
	creds := Credentials{ClientID: "client", ClientSecret: "secret"}

	for _, mode := range []RequestMode{ModeBasic, ModeForm, ModeJSON} {
		t.Run(mode.String(), func(t *testing.T) {
			opts := Options{TokenEndpoint: testEndpoint, Mode: mode, Scope: "a b c"}

			first, err := BuildRequest(creds, opts)
			require.NoError(t, err)
			second, err := BuildRequest(creds, opts)
			require.NoError(t, err)

			require.Equal(t, first.Body, second.Body)
			require.Equal(t, first.Header, second.Header)
			require.Equal(t, first.Endpoint, second.Endpoint)
		})
	}
}

func TestBuildRequest_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		opts  Options
		field string
	}{
		{
			name:  "empty client id",
			creds: Credentials{ClientSecret: "secret"},
			opts:  Options{TokenEndpoint: testEndpoint},
			field: "client_id",
		},
		{
			name:  "empty client secret",
			creds: Credentials{ClientID: "client"},
			opts:  Options{TokenEndpoint: testEndpoint},
			field: "client_secret",
		},
		{
			name:  "empty token endpoint",
			creds: Credentials{ClientID: "client", ClientSecret: "secret"},
			field: "token_endpoint",
		},
		{
			name:  "relative token endpoint",
			creds: Credentials{ClientID: "client", ClientSecret: "secret"},
			opts:  Options{TokenEndpoint: "/oauth/token"},
			field: "token_endpoint",
		},
		{
			name:  "unknown mode",
			creds: Credentials{ClientID: "client", ClientSecret: "secret"},
			opts:  Options{TokenEndpoint: testEndpoint, Mode: RequestMode(42)},
			field: "token_request_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := BuildRequest(tt.creds, tt.opts)
			require.Nil(t, tr)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T", err)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseRequestMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RequestMode
		wantErr bool
	}{
		{in: "", want: ModeBasic},
		{in: "basic", want: ModeBasic},
		{in: "FORM", want: ModeForm},
		{in: "json", want: ModeJSON},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRequestMode(tt.in)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				require.Equal(t, "token_request_type", cfgErr.Field)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRequestMode_UnmarshalText(t *testing.T) {
	var m RequestMode
	require.NoError(t, m.UnmarshalText([]byte("json")))
	require.Equal(t, ModeJSON, m)

	text, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "json", string(text))

	require.Error(t, m.UnmarshalText([]byte("xml")))
	require.Equal(t, ModeJSON, m)
}

func TestTokenRequest_NewHTTPRequest(t *testing.T) {
	tr, err := BuildRequest(
		Credentials{ClientID: "client", ClientSecret: "secret"},
		Options{TokenEndpoint: testEndpoint, Mode: ModeForm},
	)
	require.NoError(t, err)

	req, err := tr.NewHTTPRequest(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, testEndpoint, req.URL.String())

	// Mutating the materialized request must not leak into the TokenRequest.
	req.Header.Set("Content-Type", "text/plain")
	require.Equal(t, "application/x-www-form-urlencoded", tr.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.Equal(t, tr.Body, body)
	require.True(t, strings.HasPrefix(string(body), "client_id="))
}
