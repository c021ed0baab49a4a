package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/tools"
)

type echoParams struct {
	Message string `json:"message"`
}

func newTestTransport(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()

	registry := tools.NewRegistry(tools.WithRequireMFA(true))
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        "echo",
		Description: "Echo a message back",
		Tier:        auth.TierPublic,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			params, err := tools.DecodeParams[echoParams](raw)
			if err != nil {
				return nil, err
			}
			return map[string]string{"message": params.Message}, nil
		},
	}))
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        "wipe",
		Description: "Destroy everything",
		Tier:        auth.TierAdmin,
		Destructive: true,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return map[string]bool{"wiped": true}, nil
		},
	}))

	cfg := config.NewConfig()
	cfg.Server.BaseURL = "http://amanrag.test"
	cfg.Server.AllowedOrigins = []string{"http://studio.test"}

	mgr, err := auth.NewManager(config.AuthConfig{
		SessionSecret: "test-secret",
		AdminEmails:   []string{"root@example.com"},
		APIKeys: map[string]string{
			"svc-secret": "ci:service",
			"dev-key":    "alice:developer",
		},
	})
	require.NoError(t, err)

	srv, err := New(cfg, registry, mgr, WithKeepalive(50*time.Millisecond))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv
}

func postJSON(t *testing.T, client *http.Client, url, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, client *http.Client, url, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthIsPublic(t *testing.T) {
	ts, _ := newTestTransport(t)
	resp, body := getJSON(t, ts.Client(), ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestToolCallWithAPIKey(t *testing.T) {
	ts, _ := newTestTransport(t)
	resp, env := postJSON(t, ts.Client(), ts.URL+"/mcp/tool/echo", "dev-key",
		map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, env["ok"])
	assert.Equal(t, "hello", env["data"].(map[string]any)["message"])
	assert.NotEmpty(t, env["correlation_id"])
}

func TestAnonymousCannotReachAdminTools(t *testing.T) {
	ts, _ := newTestTransport(t)

	resp, env := postJSON(t, ts.Client(), ts.URL+"/mcp/tool/wipe", "", map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, env["ok"])
	assert.Equal(t, string(errors.KindForbidden), env["code"])

	// Anonymous callers see only the public slice of the registry.
	_, listing := getJSON(t, ts.Client(), ts.URL+"/mcp/tools", "")
	names := make([]string, 0)
	for _, entry := range listing["tools"].([]any) {
		names = append(names, entry.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"echo"}, names)
}

func TestUnknownToolIsNotFound(t *testing.T) {
	ts, _ := newTestTransport(t)
	resp, env := postJSON(t, ts.Client(), ts.URL+"/mcp/tool/nope", "dev-key", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(errors.KindNotFound), env["code"])
}

func TestInvalidCredentialsRejected(t *testing.T) {
	ts, _ := newTestTransport(t)
	resp, env := postJSON(t, ts.Client(), ts.URL+"/mcp/tool/echo", "bogus-token",
		map[string]string{"message": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.KindUnauthorized), env["code"])
}

func TestMagicLinkLoginFlow(t *testing.T) {
	ts, _ := newTestTransport(t)
	client := ts.Client()

	resp, body := postJSON(t, client, ts.URL+"/auth/login", "",
		map[string]string{"email": "root@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	verifyURL, err := url.Parse(body["verify_url"].(string))
	require.NoError(t, err)
	linkToken := verifyURL.Query().Get("token")
	require.NotEmpty(t, linkToken)

	resp, body = getJSON(t, client, ts.URL+"/auth/callback?token="+linkToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := body["token"].(string)
	principal := body["principal"].(map[string]any)
	assert.Equal(t, "admin", principal["tier"])
	assert.Equal(t, false, principal["mfa_verified"])

	// A redeemed link is single use.
	resp, _ = getJSON(t, client, ts.URL+"/auth/callback?token="+linkToken, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Admin tier without a second factor stops at the MFA gate.
	resp, env := postJSON(t, client, ts.URL+"/mcp/tool/wipe", session, map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, env["error"], "second factor")

	// Without an enrolled authenticator MFA verification cannot proceed.
	resp, _ = postJSON(t, client, ts.URL+"/auth/verify-mfa", session, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLogoutRevokesSession(t *testing.T) {
	ts, _ := newTestTransport(t)
	client := ts.Client()

	_, body := postJSON(t, client, ts.URL+"/auth/login", "",
		map[string]string{"email": "alice@example.com"})
	verifyURL, err := url.Parse(body["verify_url"].(string))
	require.NoError(t, err)
	_, body = getJSON(t, client, ts.URL+"/auth/callback?token="+verifyURL.Query().Get("token"), "")
	session := body["token"].(string)

	resp, _ := getJSON(t, client, ts.URL+"/mcp/tools", session)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, client, ts.URL+"/auth/logout", session, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := getJSON(t, client, ts.URL+"/mcp/tools", session)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.KindUnauthorized), env["code"])
}

func TestM2MExchangeAndDestructiveGate(t *testing.T) {
	ts, _ := newTestTransport(t)
	client := ts.Client()

	resp, body := postJSON(t, client, ts.URL+"/auth/m2m/token", "",
		map[string]string{"client_id": "ci", "client_secret": "svc-secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	assert.Equal(t, "service", body["tier"])

	// First call without confirm performs nothing.
	resp, env := postJSON(t, client, ts.URL+"/mcp/tool/wipe", token, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, env["data"].(map[string]any)["confirmation_required"])

	resp, env = postJSON(t, client, ts.URL+"/mcp/tool/wipe", token, map[string]any{"confirm": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, env["data"].(map[string]any)["wiped"])

	// Wrong secret never mints a token.
	resp, _ = postJSON(t, client, ts.URL+"/auth/m2m/token", "",
		map[string]string{"client_id": "ci", "client_secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSSEDeliversToolResults(t *testing.T) {
	ts, _ := newTestTransport(t)
	client := ts.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer dev-key")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readSSEEvent(t, reader)
	require.Equal(t, "session", event)
	var sessionPayload struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &sessionPayload))
	require.NotEmpty(t, sessionPayload.SessionID)

	postJSON(t, client, ts.URL+"/mcp/tool/echo?session="+sessionPayload.SessionID, "dev-key",
		map[string]string{"message": "over sse"})

	event, data = readSSEEvent(t, reader)
	require.Equal(t, "result", event)
	var delivered struct {
		Tool     string         `json:"tool"`
		Envelope tools.Envelope `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &delivered))
	assert.Equal(t, "echo", delivered.Tool)
	assert.True(t, delivered.Envelope.OK)
}

// readSSEEvent scans to the next event, skipping keepalive comments.
func readSSEEvent(t *testing.T, reader *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestTransport(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/mcp/tools", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://studio.test")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://studio.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/mcp/tools", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.test")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDevModeSubstitutesAdmin(t *testing.T) {
	registry := tools.NewRegistry(tools.WithDevMode(true))
	require.NoError(t, registry.Register(&tools.Tool{
		Name: "whoami", Tier: auth.TierAdmin,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return map[string]string{"user": auth.PrincipalFrom(ctx).UserID}, nil
		},
	}))

	cfg := config.NewConfig()
	cfg.Server.DevMode = true
	srv, err := New(cfg, registry, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, env := postJSON(t, ts.Client(), ts.URL+"/mcp/tool/whoami", "", map[string]any{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dev", env["data"].(map[string]any)["user"])
}
