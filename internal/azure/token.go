package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

const defaultAuthorityHost = "https://login.microsoftonline.com"

// TokenProvider exchanges service-principal credentials for a bearer token.
type TokenProvider struct {
	authorityHost string
	tenantID      string
	clientID      string
	clientSecret  string
	httpClient    *http.Client
	log           *zap.Logger
}

// NewTokenProvider creates a TokenProvider for the tenant in cfg.
func NewTokenProvider(cfg config.AzureConfig, log *zap.Logger) *TokenProvider {
	host := cfg.AuthorityHost
	if host == "" {
		host = defaultAuthorityHost
	}
	return &TokenProvider{
		authorityHost: strings.TrimRight(host, "/"),
		tenantID:      cfg.TenantID,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		log:           log,
	}
}

// TokenURL is the v2.0 token endpoint for the configured tenant.
func (p *TokenProvider) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.authorityHost, p.tenantID)
}

// Acquire runs the client-credential grant for resource (a scope such as
// "https://management.core.windows.net//.default") and returns the access
// token. Any response that does not carry both a token and its type is an
// *AuthError.
func (p *TokenProvider) Acquire(ctx context.Context, resource string) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		TokenURL:     p.TokenURL(),
		Scopes:       []string{resource},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	p.log.Info("issuing request to obtain access token", zap.String("token_url", cc.TokenURL))

	tok, err := cc.Token(ctx)
	if err != nil {
		authErr := &AuthError{Err: err}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			authErr.Code = rErr.ErrorCode
			authErr.Description = rErr.ErrorDescription
		}
		p.log.Error("error obtaining access token",
			zap.String("error", authErr.Code),
			zap.String("error_description", authErr.Description),
			zap.NamedError("cause", err),
		)
		return "", authErr
	}
	if tok.TokenType == "" || tok.AccessToken == "" {
		p.log.Error("error obtaining access token",
			zap.String("error", "invalid_response"),
			zap.String("error_description", "token response missing token_type"),
		)
		return "", &AuthError{Code: "invalid_response", Description: "token response missing token_type"}
	}

	p.log.Info("access token obtained successfully")
	return tok.AccessToken, nil
}
