package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergewarden/mergewarden/internal/core/config"
	"github.com/mergewarden/mergewarden/internal/core/engine"
	"github.com/mergewarden/mergewarden/internal/core/host"
	"github.com/mergewarden/mergewarden/internal/core/host/hosttest"
)

func newServer(t *testing.T, fake *hosttest.FakeHost, secret string) *Server {
	t.Helper()

	cfg := &config.Config{
		Rules: []config.RuleConfig{
			{
				Name:       "close stable",
				Conditions: []any{"base=stable"},
				Actions:    config.ActionsConfig{Close: &config.CloseAction{}},
			},
		},
	}
	rs, errs := cfg.CompileRules()
	require.Empty(t, errs)

	eng, err := engine.New(cfg, rs, fake)
	require.NoError(t, err)
	return New(eng, secret)
}

func addStablePR(fake *hosttest.FakeHost, number int) {
	fake.AddPullRequest(&host.PullRequest{
		Repo:       "acme/widgets",
		Number:     number,
		Title:      "change",
		Author:     "alice",
		BaseBranch: "stable",
		HeadSHA:    "sha1",
		State:      "open",
	})
}

func postEvent(t *testing.T, srv *Server, body []byte, headers map[string]string) (*httptest.ResponseRecorder, eventResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

func eventBody(t *testing.T, number int) []byte {
	t.Helper()
	body, err := json.Marshal(eventRequest{
		ID:         "delivery-1",
		Type:       "pull_request",
		Repository: "acme/widgets",
		PRNumber:   number,
		Action:     "opened",
		Author:     "alice",
	})
	require.NoError(t, err)
	return body
}

func TestHealth(t *testing.T) {
	srv := newServer(t, hosttest.New(), "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestEventProcessed(t *testing.T) {
	fake := hosttest.New()
	addStablePR(fake, 1)
	srv := newServer(t, fake, "")

	rec, resp := postEvent(t, srv, eventBody(t, 1), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "close", resp.Result.TerminalAction)
	assert.Equal(t, 1, fake.CloseCalls())
}

func TestMalformedJSONDropped(t *testing.T) {
	srv := newServer(t, hosttest.New(), "")

	rec, resp := postEvent(t, srv, []byte("{not json"), nil)

	// 2xx so the transport never redelivers garbage.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dropped", resp.Status)
}

func TestInvalidEventDropped(t *testing.T) {
	srv := newServer(t, hosttest.New(), "")

	body, err := json.Marshal(eventRequest{Type: "pull_request", Repository: "acme/widgets"})
	require.NoError(t, err)

	rec, resp := postEvent(t, srv, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dropped", resp.Status)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Skipped)
}

func TestTransientFailureRequestsRedelivery(t *testing.T) {
	fake := hosttest.New()
	addStablePR(fake, 2)
	fake.Fail("get_pull_request", host.Transient("get_pull_request", errors.New("upstream 503")))
	srv := newServer(t, fake, "")

	rec, resp := postEvent(t, srv, eventBody(t, 2), nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "retry", resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestPermanentFailureNotRetried(t *testing.T) {
	fake := hosttest.New()
	addStablePR(fake, 3)
	fake.Fail("close_pull_request", host.Permanent("close_pull_request", errors.New("403 forbidden")))
	srv := newServer(t, fake, "")

	rec, resp := postEvent(t, srv, eventBody(t, 3), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestSignatureVerification(t *testing.T) {
	const secret = "hunter2"

	fake := hosttest.New()
	addStablePR(fake, 4)
	srv := newServer(t, fake, secret)
	body := eventBody(t, 4)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	t.Run("missing signature", func(t *testing.T) {
		rec, resp := postEvent(t, srv, body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "dropped", resp.Status)
	})

	t.Run("wrong signature", func(t *testing.T) {
		rec, _ := postEvent(t, srv, body, map[string]string{
			"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(make([]byte, 32)),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid signature", func(t *testing.T) {
		rec, resp := postEvent(t, srv, body, map[string]string{
			"X-Hub-Signature-256": valid,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", resp.Status)
	})

	assert.Equal(t, 1, fake.CloseCalls(), "only the signed delivery may act")
}

func TestMissingEventIDAssigned(t *testing.T) {
	fake := hosttest.New()
	addStablePR(fake, 5)
	srv := newServer(t, fake, "")

	body, err := json.Marshal(eventRequest{
		Type:       "pull_request",
		Repository: "acme/widgets",
		PRNumber:   5,
	})
	require.NoError(t, err)

	_, resp := postEvent(t, srv, body, nil)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.EventID)
}
