package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/storage"
)

// refreshWindow is how long before actual expiry a token is refreshed, so an
// in-flight API call never races against expiry.
const refreshWindow = 5 * time.Minute

// TokenRecord is the persisted token set for one (user, platform) pair.
// It is always stored encrypted; plaintext never touches disk.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int       `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExpiresAt computes the absolute expiry of the access token.
func (t *TokenRecord) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// FlowInit is the result of starting an authorization flow.
type FlowInit struct {
	AuthURL   string `json:"auth_url"`
	State     string `json:"state"`
	ExpiresIn int    `json:"expires_in"`
	Platform  string `json:"platform"`
}

// CallbackResult is the normalized envelope returned from the OAuth
// callback. Failures carry a human-readable error, never a raw exception.
type CallbackResult struct {
	Success      bool   `json:"success"`
	Platform     string `json:"platform"`
	UserID       string `json:"user_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RevokeResult reports the outcome of disconnecting a platform.
type RevokeResult struct {
	Success  bool   `json:"success"`
	Platform string `json:"platform"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Manager owns the platform configuration table, the OAuth state map and the
// token cipher. Tokens are persisted through SecureStorage with envelope
// encryption on top of whatever the storage backend does.
type Manager struct {
	logger    *zap.Logger
	platforms map[string]PlatformConfig
	store     storage.Store
	cipher    *tokenCipher
	states    *stateStore
	client    *http.Client
	now       func() time.Time

	// refreshMu serializes token refresh per (user, platform) so two
	// concurrent refreshes cannot interleave their writes.
	mu        sync.Mutex
	refreshMu map[string]*sync.Mutex
}

// NewManager builds a Manager from configuration. The encryption key is
// loaded from the configured key file or generated on first use.
func NewManager(logger *zap.Logger, cfg *config.Config, store storage.Store) (*Manager, error) {
	key, err := loadOrCreateKey(logger, cfg.Storage.KeyFile)
	if err != nil {
		return nil, err
	}
	cipher, err := newTokenCipher(key)
	if err != nil {
		return nil, err
	}

	return &Manager{
		logger:    logger.Named("oauth"),
		platforms: buildPlatformConfigs(cfg.Platforms),
		store:     store,
		cipher:    cipher,
		states:    newStateStore(),
		client:    &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
		refreshMu: make(map[string]*sync.Mutex),
	}, nil
}

func (m *Manager) platform(name string) (PlatformConfig, error) {
	pc, ok := m.platforms[name]
	if !ok {
		return PlatformConfig{}, errorx.NewConfiguration(name, "unsupported platform")
	}
	return pc, nil
}

func storageKey(userID, platform string) string {
	return fmt.Sprintf("oauth_tokens:%s:%s", userID, platform)
}

// InitiateFlow starts the authorization flow for a platform, returning the
// provider authorization URL and the state token the callback must echo.
func (m *Manager) InitiateFlow(ctx context.Context, platform, userID string, additionalScopes []string) (*FlowInit, error) {
	pc, err := m.platform(platform)
	if err != nil {
		return nil, err
	}
	if pc.ClientID == "" || pc.ClientSecret == "" {
		return nil, errorx.NewConfiguration(platform, "missing platform credentials")
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	var verifier, challenge string
	if pc.UsePKCE {
		verifier = oauth2.GenerateVerifier()
		challenge = oauth2.S256ChallengeFromVerifier(verifier)
	}

	now := m.now()
	m.states.put(state, flowState{
		Platform:     platform,
		UserID:       userID,
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(stateTTL),
	})

	scopes := append(append([]string{}, pc.Scopes...), additionalScopes...)
	params := url.Values{}
	params.Set("client_id", pc.ClientID)
	params.Set("redirect_uri", pc.RedirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("response_type", "code")
	params.Set("state", state)
	if challenge != "" {
		params.Set("code_challenge", challenge)
		params.Set("code_challenge_method", "S256")
	}
	for k, v := range pc.ExtraAuthParams {
		params.Set(k, v)
	}

	authURL := pc.AuthURL + "?" + params.Encode()
	m.logger.Info("generated authorization URL",
		zap.String("platform", platform),
		zap.String("user_id", userID))

	return &FlowInit{
		AuthURL:   authURL,
		State:     state,
		ExpiresIn: int(stateTTL.Seconds()),
		Platform:  platform,
	}, nil
}

// HandleCallback consumes the state token, exchanges the authorization code
// and persists the encrypted tokens. The state entry is deleted on every
// path, so a state is never replayable even when the exchange fails.
func (m *Manager) HandleCallback(ctx context.Context, platform, code, state, errParam string) *CallbackResult {
	if errParam != "" {
		m.logger.Error("provider reported authorization error",
			zap.String("platform", platform),
			zap.String("error", errParam))
		return &CallbackResult{
			Success:  false,
			Platform: platform,
			Error:    "Authorization failed: " + errParam,
		}
	}

	st, existed, expired := m.states.take(state)
	if !existed {
		m.logger.Error("invalid OAuth state", zap.String("platform", platform))
		return &CallbackResult{
			Success:  false,
			Platform: platform,
			Error:    "Invalid or expired authorization request",
		}
	}
	if expired {
		return &CallbackResult{
			Success:  false,
			Platform: platform,
			Error:    "Authorization request expired",
		}
	}

	pc, err := m.platform(platform)
	if err != nil {
		return &CallbackResult{Success: false, Platform: platform, Error: err.Error()}
	}

	record, err := m.exchangeCode(ctx, pc, code, st.CodeVerifier)
	if err != nil {
		m.logger.Error("token exchange failed",
			zap.String("platform", platform),
			zap.Error(err))
		return &CallbackResult{
			Success:  false,
			Platform: platform,
			Error:    "Token exchange failed: " + err.Error(),
		}
	}

	if err := m.storeTokens(ctx, platform, st.UserID, record); err != nil {
		return &CallbackResult{
			Success:  false,
			Platform: platform,
			Error:    "Failed to persist tokens: " + err.Error(),
		}
	}

	m.logger.Info("stored encrypted tokens",
		zap.String("platform", platform),
		zap.String("user_id", st.UserID))

	return &CallbackResult{
		Success:      true,
		Platform:     platform,
		UserID:       st.UserID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresIn:    record.ExpiresIn,
	}
}

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

func (m *Manager) exchangeCode(ctx context.Context, pc PlatformConfig, code, verifier string) (*TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", pc.RedirectURI)
	data.Set("client_id", pc.ClientID)

	includeSecret := true
	if verifier != "" {
		data.Set("code_verifier", verifier)
		if pc.OmitSecretWithPKCE {
			includeSecret = false
		}
	}
	if includeSecret && !pc.BasicAuthTokenRequest {
		data.Set("client_secret", pc.ClientSecret)
	}

	return m.tokenRequest(ctx, pc, data)
}

func (m *Manager) refreshTokens(ctx context.Context, pc PlatformConfig, refreshToken string) (*TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", pc.ClientID)
	if !pc.BasicAuthTokenRequest {
		data.Set("client_secret", pc.ClientSecret)
	}

	record, err := m.tokenRequest(ctx, pc, data)
	if err != nil {
		return nil, err
	}
	// carry the refresh token forward when the provider didn't rotate it
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}
	return record, nil
}

func (m *Manager) tokenRequest(ctx context.Context, pc PlatformConfig, data url.Values) (*TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.TokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if pc.BasicAuthTokenRequest {
		auth := base64.StdEncoding.EncodeToString([]byte(pc.ClientID + ":" + pc.ClientSecret))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error during token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errorx.NewPlatformAPI("", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tr.TokenType == "" {
		tr.TokenType = "Bearer"
	}
	if tr.ExpiresIn == 0 {
		tr.ExpiresIn = 3600
	}

	return &TokenRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		ExpiresIn:    tr.ExpiresIn,
		CreatedAt:    m.now(),
	}, nil
}

func (m *Manager) storeTokens(ctx context.Context, platform, userID string, record *TokenRecord) error {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ciphertext, err := m.cipher.Encrypt(plaintext)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, storageKey(userID, platform), ciphertext, 0)
}

func (m *Manager) loadTokens(ctx context.Context, platform, userID string) (*TokenRecord, error) {
	ciphertext, err := m.store.Get(ctx, storageKey(userID, platform))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	plaintext, err := m.cipher.Decrypt(ciphertext)
	if err != nil {
		// undecryptable blob is fatal for this token only
		m.logger.Error("stored tokens undecryptable, forcing re-authentication",
			zap.String("platform", platform),
			zap.String("user_id", userID))
		_ = m.store.Delete(ctx, storageKey(userID, platform))
		return nil, nil
	}
	var record TokenRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *Manager) refreshLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.refreshMu[key]
	if !ok {
		lock = &sync.Mutex{}
		m.refreshMu[key] = lock
	}
	return lock
}

// GetValidTokens returns a usable token record, refreshing proactively when
// expiry is less than five minutes away. A nil record with nil error means
// "not connected"; callers must never fall back to a stale token.
func (m *Manager) GetValidTokens(ctx context.Context, platform, userID string) (*TokenRecord, error) {
	pc, err := m.platform(platform)
	if err != nil {
		return nil, err
	}

	lock := m.refreshLock(storageKey(userID, platform))
	lock.Lock()
	defer lock.Unlock()

	record, err := m.loadTokens(ctx, platform, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if m.now().Add(refreshWindow).Before(record.ExpiresAt()) {
		return record, nil
	}

	// token is in the refresh window or past expiry
	if record.RefreshToken == "" || !pc.SupportsRefresh {
		m.logger.Warn("tokens expiring and no refresh token available",
			zap.String("platform", platform),
			zap.String("user_id", userID))
		return nil, nil
	}

	refreshed, err := m.refreshTokens(ctx, pc, record.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed",
			zap.String("platform", platform),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, nil
	}
	if err := m.storeTokens(ctx, platform, userID, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// RevokeAccess best-effort revokes the token with the provider and always
// deletes the local record, so "disconnected" is authoritative even when the
// provider-side revoke silently fails.
func (m *Manager) RevokeAccess(ctx context.Context, platform, userID string) *RevokeResult {
	pc, err := m.platform(platform)
	if err != nil {
		return &RevokeResult{Success: false, Platform: platform, Error: err.Error()}
	}

	if pc.RevokeURL != "" {
		if record, err := m.loadTokens(ctx, platform, userID); err == nil && record != nil {
			m.revokeRemote(ctx, platform, pc, record.AccessToken)
		}
	}

	if err := m.store.Delete(ctx, storageKey(userID, platform)); err != nil {
		return &RevokeResult{
			Success:  false,
			Platform: platform,
			Error:    "Failed to delete stored tokens: " + err.Error(),
		}
	}

	m.logger.Info("revoked platform access",
		zap.String("platform", platform),
		zap.String("user_id", userID))

	return &RevokeResult{
		Success:  true,
		Platform: platform,
		Message:  "Successfully disconnected from " + platform,
	}
}

func (m *Manager) revokeRemote(ctx context.Context, platform string, pc PlatformConfig, accessToken string) {
	data := url.Values{}
	data.Set("token", accessToken)
	if platform == "twitter" {
		data.Set("client_id", pc.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.RevokeURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("token revocation request failed",
			zap.String("platform", platform),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		m.logger.Warn("token revocation returned unexpected status",
			zap.String("platform", platform),
			zap.Int("status", resp.StatusCode))
	}
}

// Platforms returns the names of all configured platforms.
func (m *Manager) Platforms() []string {
	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}
	return names
}
