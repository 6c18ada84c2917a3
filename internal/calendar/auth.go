package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	readonlyScope = "https://www.googleapis.com/auth/calendar.readonly"
	jwtBearer     = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL  = time.Hour
	expirySkew    = time.Minute
)

// ErrNoCredentials 表示既没有访问令牌也没有 service account 凭据
// ErrNoCredentials means neither an access token nor service account credentials are configured
var ErrNoCredentials = errors.New("calendar credentials not configured")

// TokenSource 提供 Bearer 访问令牌
// TokenSource supplies bearer access tokens
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued access token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}

// ServiceAccountKey 是 Google service account JSON 中用到的字段
// ServiceAccountKey holds the fields of a Google service account JSON key used here
type ServiceAccountKey struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccountKey decodes and checks a service account JSON key.
func ParseServiceAccountKey(data []byte) (ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return ServiceAccountKey{}, fmt.Errorf("parse service account key: %w", err)
	}
	if strings.TrimSpace(key.ClientEmail) == "" || strings.TrimSpace(key.PrivateKey) == "" {
		return ServiceAccountKey{}, fmt.Errorf("service account key missing client_email or private_key")
	}
	return key, nil
}

// ServiceAccountSource 用 RS256 签名的 JWT 断言换取访问令牌，并缓存到过期前
// ServiceAccountSource exchanges an RS256-signed JWT assertion for an access token and caches it until shortly before expiry
type ServiceAccountSource struct {
	key        ServiceAccountKey
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewServiceAccountSource(key ServiceAccountKey, tokenURL string, httpClient *http.Client) *ServiceAccountSource {
	if strings.TrimSpace(tokenURL) == "" {
		tokenURL = key.TokenURI
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ServiceAccountSource{
		key:        key,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (s *ServiceAccountSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(expirySkew).Before(s.expires) {
		return s.token, nil
	}

	assertion, err := s.sign(now)
	if err != nil {
		return "", err
	}
	token, ttl, err := s.exchange(ctx, assertion)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = now.Add(ttl)
	return token, nil
}

func (s *ServiceAccountSource) sign(now time.Time) (string, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.key.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse service account private key: %w", err)
	}
	claims := jwt.MapClaims{
		"iss":   s.key.ClientEmail,
		"scope": readonlyScope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.key.PrivateKeyID != "" {
		tok.Header["kid"] = s.key.PrivateKeyID
	}
	signed, err := tok.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("sign service account assertion: %w", err)
	}
	return signed, nil
}

func (s *ServiceAccountSource) exchange(ctx context.Context, assertion string) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", jwtBearer)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", 0, &APIError{Op: "token exchange", StatusCode: resp.StatusCode, Message: string(data)}
	}

	var raw struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", 0, fmt.Errorf("parse token response: %w", err)
	}
	if raw.AccessToken == "" {
		return "", 0, fmt.Errorf("token response has no access_token")
	}
	ttl := time.Duration(raw.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = assertionTTL
	}
	return raw.AccessToken, ttl, nil
}
