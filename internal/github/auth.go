package github

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenRefreshSkew refreshes cached installation tokens this long before
// they actually expire, so a token is never handed out mid-expiry.
const tokenRefreshSkew = 60 * time.Second

// TokenSource resolves the bearer token used for API calls against one
// repository. Implementations must be safe for concurrent use.
type TokenSource interface {
	Token(ctx context.Context, owner, repo string) (string, error)
}

// StaticTokenSource returns the same personal access token for every
// repository. Used when no GitHub App is configured.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource wraps a personal access token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the configured token.
func (s *StaticTokenSource) Token(ctx context.Context, owner, repo string) (string, error) {
	if s.token == "" {
		return "", errors.New("github token is not configured")
	}
	return s.token, nil
}

// AppTokenSource mints GitHub App installation tokens. Tokens are cached
// per (owner, repo) and refreshed just in time; a stale token is never
// shared across repositories because each repository resolves its own
// installation.
type AppTokenSource struct {
	appID   int64
	key     *rsa.PrivateKey
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]installationToken
	now   func() time.Time
}

type installationToken struct {
	value     string
	expiresAt time.Time
}

// NewAppTokenSource parses the PEM-encoded App private key and returns a
// source minting installation tokens against baseURL.
func NewAppTokenSource(appID int64, pemKey []byte, baseURL string, client *http.Client) (*AppTokenSource, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app id must be positive (got %d)", appID)
	}
	key, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &AppTokenSource{
		appID:   appID,
		key:     key,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		cache:   make(map[string]installationToken),
		now:     time.Now,
	}, nil
}

// Token returns a valid installation token for the repository, minting a
// fresh one when the cached token is missing or near expiry.
func (s *AppTokenSource) Token(ctx context.Context, owner, repo string) (string, error) {
	cacheKey := owner + "/" + repo

	s.mu.Lock()
	cached, ok := s.cache[cacheKey]
	now := s.now()
	s.mu.Unlock()

	if ok && now.Add(tokenRefreshSkew).Before(cached.expiresAt) {
		return cached.value, nil
	}

	jwt, err := s.appJWT(now)
	if err != nil {
		return "", err
	}
	installationID, err := s.installationID(ctx, jwt, owner, repo)
	if err != nil {
		return "", err
	}
	token, expiresAt, err := s.mintInstallationToken(ctx, jwt, installationID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[cacheKey] = installationToken{value: token, expiresAt: expiresAt}
	s.mu.Unlock()
	return token, nil
}

// appJWT builds the short-lived RS256 JWT that authenticates the App
// itself: iat now, exp ten minutes out, iss the App ID.
func (s *AppTokenSource) appJWT(now time.Time) (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := fmt.Sprintf(`{"iat":%d,"exp":%d,"iss":%d}`,
		now.Unix(), now.Add(10*time.Minute).Unix(), s.appID)
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))

	signingInput := header + "." + payload
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing app JWT: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

func (s *AppTokenSource) installationID(ctx context.Context, jwt, owner, repo string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/installation", s.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("resolving installation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("installation lookup for %s/%s returned %d: %s",
			owner, repo, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&installation); err != nil {
		return 0, fmt.Errorf("decoding installation: %w", err)
	}
	return installation.ID, nil
}

func (s *AppTokenSource) mintInstallationToken(ctx context.Context, jwt string, installationID int64) (string, time.Time, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("minting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("token mint returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var minted struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token: %w", err)
	}
	if minted.ExpiresAt.IsZero() {
		minted.ExpiresAt = s.now().Add(time.Hour)
	}
	return minted.Token, minted.ExpiresAt, nil
}

func parsePrivateKey(pemKey []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("private key contains no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}
