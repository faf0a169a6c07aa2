package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mailroom/mailroom/internal/config"
)

func setupCheckToken(t *testing.T, handler http.HandlerFunc) *bytes.Buffer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("MAILROOM_HOME", t.TempDir())
	t.Setenv("MAILROOM_ACCESS_TOKEN", "")

	prevCfg, prevLogger, prevToken := cfg, logger, checkToken
	t.Cleanup(func() { cfg, logger, checkToken = prevCfg, prevLogger, prevToken })

	cfg = config.NewDefaultConfig()
	cfg.Mail.APIBaseURL = srv.URL
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	checkTokenCmd.SetOut(&out)
	checkTokenCmd.SetContext(context.Background())
	t.Cleanup(func() { checkTokenCmd.SetOut(nil) })
	return &out
}

func TestCheckTokenPass(t *testing.T) {
	var auth atomic.Value
	out := setupCheckToken(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users/me/profile":
			_, _ = w.Write([]byte(`{"emailAddress":"jane@example.com","messagesTotal":0}`))
		case "/users/me/messages":
			_, _ = w.Write([]byte(`{"resultSizeEstimate":0}`))
		default:
			http.NotFound(w, r)
		}
	})
	checkToken = "tok-123"

	if err := checkTokenCmd.RunE(checkTokenCmd, nil); err != nil {
		t.Fatalf("check-token failed: %v", err)
	}
	if !strings.Contains(out.String(), "PASS") {
		t.Errorf("output = %q, want PASS", out.String())
	}
	if got, _ := auth.Load().(string); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestCheckTokenFail(t *testing.T) {
	out := setupCheckToken(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Insufficient Permission"}}`))
	})
	checkToken = "tok-123"

	err := checkTokenCmd.RunE(checkTokenCmd, nil)
	if !errors.Is(err, errTokenInvalid) {
		t.Fatalf("err = %v, want errTokenInvalid", err)
	}
	if !strings.Contains(out.String(), "FAIL") {
		t.Errorf("output = %q, want FAIL", out.String())
	}
}

func TestCheckTokenFromEnv(t *testing.T) {
	var auth atomic.Value
	setupCheckToken(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/users/me/profile" {
			_, _ = w.Write([]byte(`{"emailAddress":"jane@example.com"}`))
			return
		}
		_, _ = w.Write([]byte(`{"resultSizeEstimate":0}`))
	})
	checkToken = ""
	t.Setenv("MAILROOM_ACCESS_TOKEN", "env-token")

	if err := checkTokenCmd.RunE(checkTokenCmd, nil); err != nil {
		t.Fatalf("check-token failed: %v", err)
	}
	if got, _ := auth.Load().(string); got != "Bearer env-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestCheckTokenMissing(t *testing.T) {
	setupCheckToken(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a token")
	})
	checkToken = ""

	err := checkTokenCmd.RunE(checkTokenCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "no token") {
		t.Errorf("err = %v, want no token error", err)
	}
}
