package environment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const auth0DomainSuffix = ".auth0.com"

// ErrInvalidEnvironment is wrapped by every violation reported from Validate.
var ErrInvalidEnvironment = errors.New("invalid environment")

// ErrUnknownVariant is returned when a variant name does not match a built-in record.
var ErrUnknownVariant = errors.New("unknown environment variant")

// Environment is the configuration record a client build is produced from.
type Environment struct {
	Production   bool   `json:"production" yaml:"production"`
	APIServerURL string `json:"apiServerUrl" yaml:"apiServerUrl"`
	Auth0        Auth0  `json:"auth0" yaml:"auth0"`
}

// Auth0 groups the identity-provider settings.
type Auth0 struct {
	// URL is the tenant domain prefix, e.g. "dev-xp3i9c1n.us".
	URL         string `json:"url" yaml:"url"`
	Audience    string `json:"audience" yaml:"audience"`
	ClientID    string `json:"clientId" yaml:"clientId"`
	CallbackURL string `json:"callbackURL" yaml:"callbackURL"`
}

// Development returns the default variant used for local builds.
func Development() Environment {
	return Environment{
		Production:   false,
		APIServerURL: "http://127.0.0.1:5000",
		Auth0: Auth0{
			URL:         "dev-xp3i9c1n.us",
			Audience:    "https://dev-xp3i9c1n.us.auth0.com/api/v2/",
			ClientID:    "ZQ1pfeSK6mIfm7NhaP5HnaNq51GGPDqn",
			CallbackURL: "http://localhost:8100",
		},
	}
}

// Production returns the production override. Its credentials are
// placeholders and are expected to be replaced through an environment file.
func Production() Environment {
	return Environment{
		Production:   true,
		APIServerURL: "https://api.coffee-shop.example.com",
		Auth0: Auth0{
			URL:         "coffee-shop.us",
			Audience:    "coffee-shop-api",
			ClientID:    "replace-with-production-client-id",
			CallbackURL: "https://coffee-shop.example.com",
		},
	}
}

// Variant resolves a built-in record by name.
func Variant(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dev", "development":
		return Development(), nil
	case "prod", "production":
		return Production(), nil
	default:
		return Environment{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
}

// Validate reports every field that would break a deployment built from e.
func (e Environment) Validate() error {
	var errs []error

	if err := validateURL("apiServerUrl", e.APIServerURL); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(e.Auth0.URL) == "" {
		errs = append(errs, fmt.Errorf("%w: auth0.url is empty", ErrInvalidEnvironment))
	}
	if strings.TrimSpace(e.Auth0.Audience) == "" {
		errs = append(errs, fmt.Errorf("%w: auth0.audience is empty", ErrInvalidEnvironment))
	}
	if strings.TrimSpace(e.Auth0.ClientID) == "" {
		errs = append(errs, fmt.Errorf("%w: auth0.clientId is empty", ErrInvalidEnvironment))
	}
	if err := validateURL("auth0.callbackURL", e.Auth0.CallbackURL); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidEnvironment, field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEnvironment, field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s must use http or https, got %q", ErrInvalidEnvironment, field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %s has no host: %q", ErrInvalidEnvironment, field, raw)
	}
	return nil
}

// Domain returns the identity-provider tenant host.
func (e Environment) Domain() string {
	domain := strings.TrimSpace(e.Auth0.URL)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimSuffix(domain, "/")
	if strings.HasSuffix(domain, auth0DomainSuffix) {
		return domain
	}
	return domain + auth0DomainSuffix
}

// Issuer is the "iss" claim carried by tokens minted for this tenant.
func (e Environment) Issuer() string {
	return "https://" + e.Domain() + "/"
}

// JWKSURL points at the tenant's signing keys.
func (e Environment) JWKSURL() string {
	return e.Issuer() + ".well-known/jwks.json"
}

// OAuth2Config describes the tenant endpoints for the registered client application.
func (e Environment) OAuth2Config() *oauth2.Config {
	base := "https://" + e.Domain()
	return &oauth2.Config{
		ClientID:    e.Auth0.ClientID,
		RedirectURL: e.Auth0.CallbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + "/authorize",
			TokenURL: base + "/oauth/token",
		},
	}
}

// LoginURL builds the implicit-flow authorize URL the client redirects to.
// The access token comes back in the callback URL fragment.
func (e Environment) LoginURL(state string) string {
	return e.OAuth2Config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", e.Auth0.Audience),
		oauth2.SetAuthURLParam("response_type", "token"),
	)
}
