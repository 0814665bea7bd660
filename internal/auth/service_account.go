package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// KeySource yields the raw service account key JSON
type KeySource interface {
	Key() ([]byte, error)
	Describe() string
}

// FileKeySource reads the key from a file on disk
type FileKeySource struct {
	Path string
}

func (s FileKeySource) Key() ([]byte, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("service account key file required")
	}
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("service account key file not found: %s", s.Path)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	return data, nil
}

func (s FileKeySource) Describe() string {
	return "file:" + s.Path
}

// StoredKeySource reads the key from a KeyStore profile
type StoredKeySource struct {
	Store   KeyStore
	Profile string
}

func (s StoredKeySource) Key() ([]byte, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("no key store configured")
	}
	return s.Store.Load(s.Profile)
}

func (s StoredKeySource) Describe() string {
	name := "keystore"
	if s.Store != nil {
		name = s.Store.Name()
	}
	return name + ":" + s.Profile
}

// ParseServiceAccountKey validates a service account key
func ParseServiceAccountKey(keyData []byte) (*ServiceAccountKey, error) {
	var saKey ServiceAccountKey
	if err := json.Unmarshal(keyData, &saKey); err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if saKey.Type != "service_account" {
		return nil, fmt.Errorf("invalid service account key type: %s", saKey.Type)
	}
	if saKey.ClientEmail == "" {
		return nil, fmt.Errorf("missing client_email in service account key")
	}
	if saKey.PrivateKey == "" {
		return nil, fmt.Errorf("missing private_key in service account key")
	}
	return &saKey, nil
}

// ServiceAccountTokenSource builds an uncached token source from a validated
// key. ctx is used for token endpoint requests and should outlive any one
// request.
func ServiceAccountTokenSource(ctx context.Context, keyData []byte, scopes []string) (oauth2.TokenSource, *ServiceAccountKey, error) {
	if len(scopes) == 0 {
		return nil, nil, fmt.Errorf("at least one scope required")
	}
	saKey, err := ParseServiceAccountKey(keyData)
	if err != nil {
		return nil, nil, err
	}

	conf, err := google.JWTConfigFromJSON(keyData, scopes...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return &jwtSource{ctx: ctx, conf: conf}, saKey, nil
}

// jwtSource exchanges a signed assertion for a new token on every call.
// Caching and expiry belong to AuthContext.
type jwtSource struct {
	ctx  context.Context
	conf *jwt.Config
}

func (s *jwtSource) Token() (*oauth2.Token, error) {
	return s.conf.TokenSource(s.ctx).Token()
}

// LoadServiceAccount loads a key from src and returns an AuthContext for it
func LoadServiceAccount(ctx context.Context, src KeySource, scopes []string, logger logging.Logger, opts ...Option) (*AuthContext, *ServiceAccountKey, error) {
	keyData, err := src.Key()
	if err != nil {
		return nil, nil, err
	}

	source, saKey, err := ServiceAccountTokenSource(ctx, keyData, scopes)
	if err != nil {
		return nil, nil, err
	}

	if logger != nil {
		logger.Info("Loaded service account",
			logging.F("clientEmail", saKey.ClientEmail),
			logging.F("source", src.Describe()),
		)
	}

	return NewAuthContext(source, logger, opts...), saKey, nil
}
