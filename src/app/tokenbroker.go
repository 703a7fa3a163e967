package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/coreos/go-oidc/v3/oidc"
)

const identityService = "identity"

// AccessToken is a downstream token returned by the broker.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// TokenBroker exchanges credentials of one app registration for downstream
// access tokens. Exchanges are never retried.
type TokenBroker struct {
	tenantID      string
	clientID      string
	clientSecret  string
	clientOptions azcore.ClientOptions
}

// NewTokenBroker returns a broker for the app registration clientID. An
// empty authorityHost targets the public cloud.
func NewTokenBroker(tenantID, clientID, clientSecret, authorityHost string) *TokenBroker {
	broker := &TokenBroker{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	if authorityHost != "" {
		broker.clientOptions.Cloud = cloud.Configuration{ActiveDirectoryAuthorityHost: authorityHost}
	}
	return broker
}

func (b *TokenBroker) configured() error {
	if b.tenantID == "" || b.clientID == "" || b.clientSecret == "" {
		return fmt.Errorf("token broker credentials: %w", ErrNotConfigured)
	}
	return nil
}

// OnBehalfOfCredential returns a credential that exchanges the caller's
// assertion whenever a token is requested from it.
func (b *TokenBroker) OnBehalfOfCredential(assertion string) (azcore.TokenCredential, error) {
	if assertion == "" {
		return nil, ErrMissingAssertion
	}
	if err := b.configured(); err != nil {
		return nil, err
	}
	cred, err := azidentity.NewOnBehalfOfCredentialWithSecret(b.tenantID, b.clientID, assertion, b.clientSecret,
		&azidentity.OnBehalfOfCredentialOptions{ClientOptions: b.clientOptions})
	if err != nil {
		return nil, fmt.Errorf("create on-behalf-of credential: %w", err)
	}
	return cred, nil
}

// ClientSecretCredential returns the app-only credential of the registration.
func (b *TokenBroker) ClientSecretCredential() (azcore.TokenCredential, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	cred, err := azidentity.NewClientSecretCredential(b.tenantID, b.clientID, b.clientSecret,
		&azidentity.ClientSecretCredentialOptions{ClientOptions: b.clientOptions})
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}
	return cred, nil
}

// OnBehalfOf exchanges the caller's assertion for a token scoped to scopes.
func (b *TokenBroker) OnBehalfOf(ctx context.Context, assertion string, scopes []string) (AccessToken, error) {
	cred, err := b.OnBehalfOfCredential(assertion)
	if err != nil {
		return AccessToken{}, err
	}
	return getToken(ctx, cred, scopes)
}

type tokenCredential interface {
	GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error)
}

func getToken(ctx context.Context, cred tokenCredential, scopes []string) (AccessToken, error) {
	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return AccessToken{}, identityError(err)
	}
	return AccessToken{Token: token.Token, ExpiresOn: token.ExpiresOn}, nil
}

func identityError(err error) error {
	upstream := &UpstreamError{Service: identityService, Err: err}
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) && authErr.RawResponse != nil {
		upstream.StatusCode = authErr.RawResponse.StatusCode
	}
	return upstream
}

// IsConsentRequired reports whether err is the identity provider asking for
// user or admin consent to the requested permissions.
func IsConsentRequired(err error) bool {
	return err != nil && strings.Contains(err.Error(), "AADSTS65001")
}

// IsInvalidGrant reports whether the identity provider rejected the grant
// itself, e.g. an assertion that was never consented for the resource.
func IsInvalidGrant(err error) bool {
	return err != nil && strings.Contains(err.Error(), "invalid_grant")
}

// OIDCAssertionVerifier checks inbound assertions against the tenant issuer
// before they are exchanged.
type OIDCAssertionVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAssertionVerifier discovers the tenant v2.0 issuer and verifies
// assertions issued for audience.
func NewOIDCAssertionVerifier(ctx context.Context, tenantID, audience string) (*OIDCAssertionVerifier, error) {
	issuer := fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover issuer %s: %w", issuer, err)
	}
	return &OIDCAssertionVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

func (v *OIDCAssertionVerifier) Verify(ctx context.Context, assertion string) error {
	if _, err := v.verifier.Verify(ctx, assertion); err != nil {
		return fmt.Errorf("verify assertion: %w", err)
	}
	return nil
}
