package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/clinic-links/internal/apperror"
)

// IdentityProvider talks to a hosted identity service that exposes an
// OAuth2 token endpoint plus a small account API (GoTrue style):
//
//	POST {base}/token     grant_type=password | refresh_token
//	POST {base}/signup    {"email","password"}  -> token JSON
//	PUT  {base}/user      {"email","password"}  (bearer)
//	POST {base}/logout                          (bearer)
//
// The password grant and refresh go through golang.org/x/oauth2; the
// account calls use the bearer client it hands out, which refreshes the
// access token on the way.
type IdentityProvider struct {
	baseURL string
	config  *oauth2.Config
}

// NewIdentityProvider creates a provider rooted at baseURL.
func NewIdentityProvider(baseURL, clientID, clientSecret string) *IdentityProvider {
	baseURL = strings.TrimRight(baseURL, "/")
	return &IdentityProvider{
		baseURL: baseURL,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// SignIn exchanges an email and password for a token pair.
func (p *IdentityProvider) SignIn(ctx context.Context, email, password string) (*oauth2.Token, error) {
	tok, err := p.config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, classify("signing in", err)
	}
	return tok, nil
}

// signupResponse is the token JSON the signup endpoint returns. It mirrors
// the token endpoint's, so the same fields feed an oauth2.Token.
type signupResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignUp creates the account and returns its first token pair.
func (p *IdentityProvider) SignUp(ctx context.Context, email, password string) (*oauth2.Token, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("auth: encoding signup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/signup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("auth: building signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Same transport as the token calls: oauth2.HTTPClient in ctx, if set.
	resp, err := oauth2.NewClient(ctx, nil).Do(req)
	if err != nil {
		return nil, apperror.Unavailable("identity provider unreachable", err)
	}
	defer resp.Body.Close()

	if err := statusError("signing up", resp); err != nil {
		return nil, err
	}

	var sr signupResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("auth: decoding signup response: %w", err)
	}
	if sr.AccessToken == "" {
		return nil, fmt.Errorf("auth: signup response carried no access token")
	}

	tok := &oauth2.Token{
		AccessToken:  sr.AccessToken,
		TokenType:    sr.TokenType,
		RefreshToken: sr.RefreshToken,
	}
	if sr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(sr.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// Refresh returns tok itself while it is valid, or a refreshed token.
func (p *IdentityProvider) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := p.config.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, classify("refreshing session", err)
	}
	return fresh, nil
}

// UpdateUser changes the account's email and password.
func (p *IdentityProvider) UpdateUser(ctx context.Context, tok *oauth2.Token, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return fmt.Errorf("auth: encoding user update: %w", err)
	}
	return p.authorized(ctx, tok, http.MethodPut, "/user", body, "updating user")
}

// SignOut revokes the session on the provider side.
func (p *IdentityProvider) SignOut(ctx context.Context, tok *oauth2.Token) error {
	return p.authorized(ctx, tok, http.MethodPost, "/logout", nil, "signing out")
}

func (p *IdentityProvider) authorized(ctx context.Context, tok *oauth2.Token, method, path string, body []byte, doing string) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: building %s request: %w", doing, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.config.Client(ctx, tok).Do(req)
	if err != nil {
		return classify(doing, err)
	}
	defer resp.Body.Close()

	return statusError(doing, resp)
}

// classify turns oauth2 and transport errors into application errors: a
// 4xx from the token endpoint is bad credentials, anything else means the
// provider could not be reached.
func classify(doing string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil &&
		re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
		return fmt.Errorf("auth: %s: %w", doing, apperror.Unauthorized("invalid credentials"))
	}
	return apperror.Unavailable("identity provider unreachable", fmt.Errorf("%s: %w", doing, err))
}

func statusError(doing string, resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperror.Unauthorized("identity provider rejected the session")
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return apperror.ValidationFailed("username", fmt.Sprintf("identity provider rejected %s", doing))
	default:
		return apperror.Unavailable("identity provider error",
			fmt.Errorf("%s: status %d", doing, resp.StatusCode))
	}
}
