package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/twostep"
	"github.com/MrEthical07/twostep/delivery"
	"github.com/MrEthical07/twostep/store/memstore"
)

const password = "correct-horse-42"

type codeBox struct {
	mu    sync.Mutex
	codes []string
}

func (c *codeBox) deliver(_ context.Context, _ string, code string, _ delivery.Purpose) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return nil
}

func (c *codeBox) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.codes, "no code delivered")
	return c.codes[len(c.codes)-1]
}

type apiEnv struct {
	server *httptest.Server
	engine *twostep.Engine
	mail   *codeBox
}

func newAPI(t *testing.T, opts Options) *apiEnv {
	t.Helper()

	cfg := twostep.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	mail := &codeBox{}
	engine, err := twostep.New().
		WithConfig(cfg).
		WithAccountStore(memstore.New()).
		WithEmailSender(delivery.EmailFunc(mail.deliver)).
		WithSMSSender(delivery.SMSFunc(mail.deliver)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = -1
	}
	srv := httptest.NewServer(NewRouter(engine, opts))
	t.Cleanup(srv.Close)
	return &apiEnv{server: srv, engine: engine, mail: mail}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (env *apiEnv) signupAndVerify(t *testing.T, email string) {
	t.Helper()
	resp, _ := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": password, "confirmPassword": password,
		"firstName": "Ada", "lastName": "Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]string{
		"email": email, "code": env.mail.last(t),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmailTwoFactorRoundTrip(t *testing.T) {
	env := newAPI(t, Options{})
	env.signupAndVerify(t, "ada@example.com")

	resp, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CHALLENGE_PENDING", body["state"])
	assert.Equal(t, "EMAIL", body["method"])
	challengeID, _ := body["challengeId"].(string)
	require.NotEmpty(t, challengeID)

	resp, body = env.do(t, http.MethodPost, "/api/auth/login/verify", "", map[string]string{
		"challengeId": challengeID, "code": env.mail.last(t),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AUTHENTICATED", body["state"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	resp, body = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, true, body["emailVerified"])

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	env := newAPI(t, Options{})
	env.signupAndVerify(t, "ada@example.com")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "duplicate signup",
			path:   "/api/auth/signup",
			body:   map[string]string{"email": "ada@example.com", "password": password, "confirmPassword": password},
			status: http.StatusConflict,
			code:   "ACCOUNT_EXISTS",
		},
		{
			name:   "invalid signup",
			path:   "/api/auth/signup",
			body:   map[string]string{"email": "nope", "password": password, "confirmPassword": password},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "wrong password",
			path:   "/api/auth/login",
			body:   map[string]string{"email": "ada@example.com", "password": "wrong-password"},
			status: http.StatusUnauthorized,
			code:   "AUTHENTICATION_FAILED",
		},
		{
			name:   "unknown challenge",
			path:   "/api/auth/login/verify",
			body:   map[string]string{"challengeId": "missing", "code": "123456"},
			status: http.StatusUnauthorized,
			code:   "AUTHENTICATION_FAILED",
		},
		{
			name:   "unknown field",
			path:   "/api/auth/login",
			body:   map[string]string{"email": "ada@example.com", "pass": password},
			status: http.StatusBadRequest,
			code:   "MALFORMED_BODY",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	env := newAPI(t, Options{})
	env.signupAndVerify(t, "ada@example.com")

	resp, _ := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": password, "confirmPassword": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wrongResp, wrong := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	})
	unverifiedResp, unverified := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": password,
	})
	unknownResp, unknown := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": password,
	})

	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unverifiedResp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownResp.StatusCode)
	assert.Equal(t, map[string]any{"code": "AUTHENTICATION_FAILED", "error": "authentication failed"}, wrong)
	assert.Equal(t, wrong, unverified)
	assert.Equal(t, wrong, unknown)
}

func TestValidationDetails(t *testing.T) {
	env := newAPI(t, Options{})

	resp, body := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": password, "confirmPassword": "mismatch",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, "expected field details, got %v", body)
	assert.Contains(t, details, "confirmPassword")
}

func TestResendCodeHidesUnknownAccount(t *testing.T) {
	env := newAPI(t, Options{})

	resp, _ := env.do(t, http.MethodPost, "/api/auth/resend-code", "", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	env := newAPI(t, Options{})

	for _, path := range []string{"/api/auth/me", "/api/auth/2fa/qr"} {
		resp, _ := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp, _ := env.do(t, http.MethodPost, "/api/auth/change-password", "garbage", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAuthenticatorAppSetupOverHTTP(t *testing.T) {
	env := newAPI(t, Options{})
	env.signupAndVerify(t, "ada@example.com")

	_, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": password,
	})
	_, body = env.do(t, http.MethodPost, "/api/auth/login/verify", "", map[string]string{
		"challengeId": body["challengeId"].(string), "code": env.mail.last(t),
	})
	token := body["token"].(string)

	resp, body := env.do(t, http.MethodPost, "/api/auth/2fa", token, map[string]string{
		"password": password, "method": "AUTHENTICATOR_APP",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["pending"])

	resp, body = env.do(t, http.MethodGet, "/api/auth/2fa/qr", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["uri"], "otpauth://totp/")

	resp, body = env.do(t, http.MethodPost, "/api/auth/verify-totp", token, map[string]string{"code": "12"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
}

func TestIPRateLimit(t *testing.T) {
	env := newAPI(t, Options{RequestsPerSecond: 0.001, Burst: 2})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/auth/resend-code", "", map[string]string{"email": "x@example.com"})
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, statuses)

	resp, _ := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health checks are not limited")
}

func TestIPLimiterPrunesIdleBuckets(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	l := newIPLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.allow("10.0.0.2"))
	assert.Len(t, l.buckets, 1)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestRequestIDAndMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("twostep_logout_total 0\n"))
	})
	env := newAPI(t, Options{Metrics: metrics})

	resp, _ := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
