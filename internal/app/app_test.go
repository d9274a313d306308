package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-auth-server/internal/config"
	"token-auth-server/internal/model"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		ServerPort:       "0",
		RequestTimeout:   5 * time.Second,
		StoreBackend:     backend,
		CleanupInterval:  time.Hour,
		RateLimitRPM:     -1,
		AuthRateLimitRPM: 1000,
		Auth: config.Authentication{
			AccessTokenSecret:      "access-secret-0123456789abcdefghijklmnop",
			RefreshTokenSecret:     "refresh-secret-0123456789abcdefghijklmnop",
			AccessTokenExpiration:  time.Minute,
			RefreshTokenExpiration: time.Hour,
			Issuer:                 "auth",
			Audience:               "api",
		},
	}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func runRotationFlow(t *testing.T, cfg *config.Config) {
	t.Helper()

	application, err := build(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(application.close)

	server := httptest.NewServer(application.server.Handler)
	t.Cleanup(server.Close)

	resp, _ := postJSON(t, server.URL+"/api/v1/auth/register", model.RegisterRequest{
		Email: "alice@example.com", Username: "alice", Password: "s3cret", ConfirmPassword: "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := postJSON(t, server.URL+"/api/v1/auth/login", model.LoginRequest{Username: "alice", Password: "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair model.AuthenticatedUserResponse
	require.NoError(t, json.Unmarshal(body["data"], &pair))

	resp, body = postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated model.AuthenticatedUserResponse
	require.NoError(t, json.Unmarshal(body["data"], &rotated))

	resp, _ = postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
	logoutResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = logoutResp.Body.Close()
	require.Equal(t, http.StatusNoContent, logoutResp.StatusCode)

	resp, _ = postJSON(t, server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	healthResp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	_ = healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}

func TestRotationFlowMemoryBackend(t *testing.T) {
	runRotationFlow(t, testConfig(config.BackendMemory))
}

func TestRotationFlowRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.BackendRedis)
	cfg.RedisAddr = mr.Addr()

	runRotationFlow(t, cfg)

	assert.Empty(t, mr.Keys(), "logout should leave no refresh token keys behind")
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	_, err := build(t.Context(), testConfig("etcd"))
	require.Error(t, err)
}
