package oauth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/crosspost-io/crosspost/internal/storage"
)

func testManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			KeyFile: filepath.Join(t.TempDir(), "key"),
		},
		Platforms: config.PlatformsConfig{
			"twitter":   {ClientID: "tw-id", ClientSecret: "tw-secret", RedirectURI: "http://localhost:8501/oauth/twitter/callback"},
			"linkedin":  {ClientID: "li-id", ClientSecret: "li-secret", RedirectURI: "http://localhost:8501/oauth/linkedin/callback"},
			"instagram": {ClientID: "ig-id", ClientSecret: "ig-secret", RedirectURI: "http://localhost:8501/oauth/instagram/callback"},
			"youtube":   {ClientID: "yt-id", ClientSecret: "yt-secret", RedirectURI: "http://localhost:8501/oauth/youtube/callback"},
		},
	}
	m, err := NewManager(zap.NewNop(), cfg, store)
	require.NoError(t, err)
	return m, store
}

func (m *Manager) overrideTokenURL(platform, tokenURL string) {
	pc := m.platforms[platform]
	pc.TokenURL = tokenURL
	m.platforms[platform] = pc
}

func TestInitiateFlowTwitter(t *testing.T) {
	m, _ := testManager(t)

	flow, err := m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "tw-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Contains(t, q.Get("scope"), "tweet.write")
	assert.Equal(t, 600, flow.ExpiresIn)

	st, existed, expired := m.states.take(flow.State)
	require.True(t, existed)
	require.False(t, expired)
	assert.Equal(t, "user-1", st.UserID)
	assert.NotEmpty(t, st.CodeVerifier)
}

func TestInitiateFlowChallengeMatchesVerifier(t *testing.T) {
	m, _ := testManager(t)

	flow, err := m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	challenge := u.Query().Get("code_challenge")
	require.NotEmpty(t, challenge)

	st, existed, expired := m.states.take(flow.State)
	require.True(t, existed)
	require.False(t, expired)

	sum := sha256.Sum256([]byte(st.CodeVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge,
		"challenge in the auth URL must be the S256 hash of the stored verifier")
}

func TestInitiateFlowLinkedInSkipsPKCE(t *testing.T) {
	m, _ := testManager(t)

	flow, err := m.InitiateFlow(context.Background(), "linkedin", "user-1", nil)
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("code_challenge"))
	assert.Empty(t, u.Query().Get("code_challenge_method"))
}

func TestInitiateFlowYouTubeExtraParams(t *testing.T) {
	m, _ := testManager(t)

	flow, err := m.InitiateFlow(context.Background(), "youtube", "user-1", nil)
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Equal(t, "consent", u.Query().Get("prompt"))
}

func TestInitiateFlowErrors(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.InitiateFlow(context.Background(), "myspace", "user-1", nil)
	assert.Error(t, err)

	pc := m.platforms["twitter"]
	pc.ClientSecret = ""
	m.platforms["twitter"] = pc
	_, err = m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	assert.Error(t, err)
}

func TestHandleCallbackProviderError(t *testing.T) {
	m, _ := testManager(t)

	res := m.HandleCallback(context.Background(), "twitter", "", "", "access_denied")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "access_denied")
}

func TestHandleCallbackInvalidState(t *testing.T) {
	m, _ := testManager(t)

	res := m.HandleCallback(context.Background(), "twitter", "code", "never-issued", "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid or expired")
}

func TestHandleCallbackExpiredState(t *testing.T) {
	m, _ := testManager(t)

	flow, err := m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	require.NoError(t, err)

	m.states.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }

	res := m.HandleCallback(context.Background(), "twitter", "code", flow.State, "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "expired")
}

func TestHandleCallbackExchangesTwitterCode(t *testing.T) {
	m, store := testManager(t)

	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-123",
			"refresh_token": "rt-456",
			"token_type":    "bearer",
			"expires_in":    7200,
			"scope":         "tweet.read tweet.write",
		})
	}))
	defer srv.Close()
	m.overrideTokenURL("twitter", srv.URL)

	flow, err := m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	require.NoError(t, err)

	res := m.HandleCallback(context.Background(), "twitter", "auth-code", flow.State, "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "at-123", res.AccessToken)
	assert.Equal(t, "rt-456", res.RefreshToken)
	assert.Equal(t, 7200, res.ExpiresIn)
	assert.Equal(t, "user-1", res.UserID)

	assert.True(t, strings.HasPrefix(gotAuth, "Basic "), "twitter uses HTTP Basic on the token endpoint")
	assert.Contains(t, gotBody, "code_verifier=")
	assert.NotContains(t, gotBody, "client_secret=", "secret is omitted with PKCE")

	// persisted record is encrypted at rest
	raw, err := store.Get(context.Background(), storageKey("user-1", "twitter"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("at-123")))

	// state was consumed; replay fails
	replay := m.HandleCallback(context.Background(), "twitter", "auth-code", flow.State, "")
	assert.False(t, replay.Success)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	m, _ := testManager(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	m.overrideTokenURL("twitter", srv.URL)

	flow, err := m.InitiateFlow(context.Background(), "twitter", "user-1", nil)
	require.NoError(t, err)

	res := m.HandleCallback(context.Background(), "twitter", "bad-code", flow.State, "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Token exchange failed")
}

func TestGetValidTokensFresh(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	err := m.storeTokens(ctx, "twitter", "user-1", &TokenRecord{
		AccessToken: "at-fresh",
		TokenType:   "Bearer",
		ExpiresIn:   7200,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	record, err := m.GetValidTokens(ctx, "twitter", "user-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "at-fresh", record.AccessToken)
}

func TestGetValidTokensNotConnected(t *testing.T) {
	m, _ := testManager(t)

	record, err := m.GetValidTokens(context.Background(), "twitter", "nobody")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestGetValidTokensProactiveRefresh(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"token_type":   "bearer",
			"expires_in":   7200,
		})
	}))
	defer srv.Close()
	m.overrideTokenURL("twitter", srv.URL)

	// expires in 2 minutes: inside the 5 minute refresh window but not expired
	err := m.storeTokens(ctx, "twitter", "user-1", &TokenRecord{
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		ExpiresIn:    120,
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)

	record, err := m.GetValidTokens(ctx, "twitter", "user-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "at-new", record.AccessToken)
	assert.Equal(t, "rt-old", record.RefreshToken, "refresh token carried forward when not rotated")

	// the refreshed record was persisted
	again, err := m.GetValidTokens(ctx, "twitter", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "at-new", again.AccessToken)
}

func TestGetValidTokensNoRefreshSupport(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	err := m.storeTokens(ctx, "instagram", "user-1", &TokenRecord{
		AccessToken: "at-ig",
		ExpiresIn:   60,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	record, err := m.GetValidTokens(ctx, "instagram", "user-1")
	require.NoError(t, err)
	assert.Nil(t, record, "expiring token without refresh means re-authentication")
}

func TestRevokeAccessAlwaysDeletesLocally(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	err := m.storeTokens(ctx, "linkedin", "user-1", &TokenRecord{
		AccessToken: "at-li",
		ExpiresIn:   3600,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	// linkedin has no revoke endpoint; local deletion still succeeds
	res := m.RevokeAccess(ctx, "linkedin", "user-1")
	assert.True(t, res.Success)

	_, err = store.Get(ctx, storageKey("user-1", "linkedin"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRevokeAccessCallsRevokeEndpoint(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	var revoked bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "at-tw", r.Form.Get("token"))
		assert.Equal(t, "tw-id", r.Form.Get("client_id"))
		revoked = true
	}))
	defer srv.Close()

	pc := m.platforms["twitter"]
	pc.RevokeURL = srv.URL
	m.platforms["twitter"] = pc

	err := m.storeTokens(ctx, "twitter", "user-1", &TokenRecord{
		AccessToken: "at-tw",
		ExpiresIn:   3600,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	res := m.RevokeAccess(ctx, "twitter", "user-1")
	assert.True(t, res.Success)
	assert.True(t, revoked)
}
