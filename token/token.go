// Package token manages short-lived access tokens for the chat connection.
// The remote OAuth provider is the source of truth; a TTL-bounded cache keeps
// refresh calls rare. Two entries are maintained per token: a forward key
// (owner -> token) and a reverse key (token -> owner metadata) for O(1)
// owner lookup and bulk enumeration.
package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/chat-archiver/cache"
	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/telemetry"
)

// Remote OAuth failure taxonomy. ErrExpired and ErrInvalid are terminal for
// the attempt and must surface to the caller; ErrRequest is transient and
// safe to retry on the next scheduled tick.
var (
	ErrRequest = errors.New("oauth request failed")
	ErrExpired = errors.New("refresh token expired")
	ErrInvalid = errors.New("refresh token invalid")
)

const (
	defaultTokenURL    = "https://id.twitch.tv/oauth2/token"    //nolint:gosec // G101: endpoint URL, not a credential
	defaultValidateURL = "https://id.twitch.tv/oauth2/validate" //nolint:gosec // G101: endpoint URL, not a credential

	// Cached entries expire 20 minutes before the token itself does, so a
	// cache miss always refreshes while the old credential is still valid.
	ttlMargin = 20 * time.Minute
)

// OwnerKind distinguishes the two forward-key namespaces.
type OwnerKind string

const (
	OwnerBot  OwnerKind = "bot"
	OwnerUser OwnerKind = "user"
)

// Info is the reverse-index payload: who a live token belongs to.
type Info struct {
	TokenType OwnerKind `json:"token_type"`
	ID        string    `json:"id"`
}

type refreshResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// Manager is the cache-aside token accessor.
type Manager struct {
	DB           *sql.DB
	Cache        cache.KV
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	TokenURL     string // defaults to the Twitch token endpoint
	ValidateURL  string // defaults to the Twitch validate endpoint
}

func forwardKey(kind OwnerKind, id string) string { return fmt.Sprintf("%s:%s:token", kind, id) }
func reverseKey(token string) string              { return "token:" + token }

func (m *Manager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

func (m *Manager) tokenURL() string {
	if m.TokenURL != "" {
		return m.TokenURL
	}
	return defaultTokenURL
}

func (m *Manager) validateURL() string {
	if m.ValidateURL != "" {
		return m.ValidateURL
	}
	return defaultValidateURL
}

// GetBotToken returns the bot's access token, hitting the remote provider
// only on a cache miss.
func (m *Manager) GetBotToken(ctx context.Context, bot string) (string, error) {
	tok, err := m.Cache.Get(ctx, forwardKey(OwnerBot, bot))
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return "", err
	}
	return m.RefreshBotToken(ctx, bot)
}

// RefreshBotToken exchanges the stored refresh credential for a new access
// token, persists the rotated credential, and writes the cache pair. The
// reverse entry is written first; an orphaned reverse entry left by a crash
// between the two writes is reconciled by the validator sweep.
func (m *Manager) RefreshBotToken(ctx context.Context, bot string) (string, error) {
	refreshToken, err := db.GetBotRefreshToken(ctx, m.DB, bot)
	if err != nil {
		return "", err
	}

	res, err := m.refreshGrant(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if err := db.UpdateBotRefreshToken(ctx, m.DB, bot, res.RefreshToken); err != nil {
		return "", err
	}

	ttl := time.Duration(res.ExpiresIn)*time.Second - ttlMargin
	if ttl <= 0 {
		// Token shorter-lived than the margin: usable, but not worth caching.
		slog.Warn("token lifetime below cache margin, skipping cache", slog.String("bot", bot), slog.Int("expires_in", res.ExpiresIn))
		return res.AccessToken, nil
	}

	info, err := json.Marshal(Info{TokenType: OwnerBot, ID: bot})
	if err != nil {
		return "", fmt.Errorf("marshal token info: %w", err)
	}
	if err := m.Cache.SetTTL(ctx, reverseKey(res.AccessToken), string(info), ttl); err != nil {
		return "", err
	}
	if err := m.Cache.SetTTL(ctx, forwardKey(OwnerBot, bot), res.AccessToken, ttl); err != nil {
		return "", err
	}

	telemetry.TokenRefreshes.Inc()
	return res.AccessToken, nil
}

// refreshGrant performs the refresh_token grant against the provider.
// Status mapping: 200 success, 400 invalid (terminal), 401 expired
// (terminal), anything else a transient request error.
func (m *Manager) refreshGrant(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.ClientID)
	form.Set("client_secret", m.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var res refreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrRequest, err)
		}
		return &res, nil
	case http.StatusBadRequest:
		return nil, ErrInvalid
	case http.StatusUnauthorized:
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: unexpected status %s", ErrRequest, resp.Status)
	}
}

// Validate checks a token against the provider. Any non-200 response or
// transport failure evicts both cache entries for the token; this is the
// only path that actively evicts. A successful validation is a no-op.
func (m *Manager) Validate(ctx context.Context, tok string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.validateURL(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Authorization", "OAuth "+tok)

	resp, err := m.httpClient().Do(req)
	if err != nil {
		if delErr := m.Delete(ctx, tok); delErr != nil {
			slog.Warn("evict after validate transport failure", slog.Any("err", delErr))
		}
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		if delErr := m.Delete(ctx, tok); delErr != nil {
			slog.Warn("evict after failed validation", slog.Any("err", delErr))
		}
		return ErrInvalid
	}
	return nil
}

// Info resolves a token to its owner via the reverse index. Returns
// (nil, nil) when the token is unknown.
func (m *Manager) Info(ctx context.Context, tok string) (*Info, error) {
	raw, err := m.Cache.Get(ctx, reverseKey(tok))
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("unmarshal token info: %w", err)
	}
	return &info, nil
}

// Delete removes both cache entries for a token. Unknown tokens are a no-op,
// so repeated deletes are safe.
func (m *Manager) Delete(ctx context.Context, tok string) error {
	info, err := m.Info(ctx, tok)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	if err := m.Cache.Delete(ctx, forwardKey(info.TokenType, info.ID)); err != nil {
		return err
	}
	return m.Cache.Delete(ctx, reverseKey(tok))
}

// ActiveTokens enumerates every live token in both forward-key namespaces.
func (m *Manager) ActiveTokens(ctx context.Context) ([]string, error) {
	tokens, err := m.Cache.Values(ctx, string(OwnerBot)+":*:token")
	if err != nil {
		return nil, err
	}
	userTokens, err := m.Cache.Values(ctx, string(OwnerUser)+":*:token")
	if err != nil {
		return nil, err
	}
	return append(tokens, userTokens...), nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
