package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogLevelFollowsValidationError(t *testing.T) {
	testCases := []struct {
		name          string
		validateErr   error
		expectedLevel zapcore.Level
	}{
		{name: "expired", validateErr: jwt.ErrTokenExpired, expectedLevel: zapcore.InfoLevel},
		{name: "bad signature", validateErr: jwt.ErrTokenSignatureInvalid, expectedLevel: zapcore.WarnLevel},
		{name: "wrong audience", validateErr: jwt.ErrTokenInvalidAudience, expectedLevel: zapcore.WarnLevel},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			request := httptest.NewRequest(http.MethodGet, "/admin/stats", http.NoBody)
			request.Header.Set("Authorization", "Bearer admin-token")
			ctx.Request = request

			core, logs := observer.New(zapcore.DebugLevel)
			handler := &httpHandler{
				adminTokens: stubAdminTokenValidator{validateErr: testCase.validateErr},
				logger:      zap.New(core),
			}

			handler.authorizeRequest(ctx)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
			}
			if _, exists := ctx.Get(adminSubjectContextKey); exists {
				t.Fatalf("rejected request must not carry an admin subject")
			}
			entries := logs.FilterMessage("token validation failed").All()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one validation log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.expectedLevel {
				t.Fatalf("expected %s level, got %s", testCase.expectedLevel, entries[0].Level)
			}
			hasCause := false
			for _, field := range entries[0].Context {
				if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), testCase.validateErr) {
					hasCause = true
				}
			}
			if !hasCause {
				t.Fatalf("expected validation error in log context, got %v", entries[0].Context)
			}
		})
	}
}

func TestAuthorizeRequestRejectsMalformedHeaderWithoutValidating(t *testing.T) {
	for _, header := range []string{"", "Basic YWRtaW4=", "Bearer ", "bearer token"} {
		gin.SetMode(gin.TestMode)
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		request := httptest.NewRequest(http.MethodPost, "/admin/tokens/cleanup", http.NoBody)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		ctx.Request = request

		validator := &countingTokenValidator{subject: "telegram:42"}
		handler := &httpHandler{adminTokens: validator, logger: zap.NewNop()}
		handler.authorizeRequest(ctx)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, recorder.Code)
		}
		if validator.calls != 0 {
			t.Fatalf("header %q: validator must not run, ran %d times", header, validator.calls)
		}
	}
}

func TestTokenCleanupLogsAdminSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	cleaner := &stubCleaner{deleted: 4}
	handler, err := NewHTTPHandler(Dependencies{
		AdminTokens: stubAdminTokenValidator{subject: "telegram:42"},
		Catalog:     &stubCatalog{},
		Audience:    stubAudience{},
		Tokens:      cleaner,
		Logger:      zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/admin/tokens/cleanup", http.NoBody)
	request.Header.Set("Authorization", "Bearer admin-token")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if cleaner.calls != 1 {
		t.Fatalf("expected one cleanup call, got %d", cleaner.calls)
	}
	entries := logs.FilterMessage("token cleanup requested").All()
	if len(entries) != 1 {
		t.Fatalf("expected one cleanup log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["subject"] != "telegram:42" {
		t.Fatalf("expected admin subject in log, got %v", fields["subject"])
	}
	if fields["deleted"] != int64(4) {
		t.Fatalf("expected deleted count in log, got %v", fields["deleted"])
	}
}

type stubAdminTokenValidator struct {
	subject     string
	validateErr error
}

func (s stubAdminTokenValidator) ValidateToken(string) (string, error) {
	return s.subject, s.validateErr
}

type countingTokenValidator struct {
	subject string
	calls   int
}

func (v *countingTokenValidator) ValidateToken(string) (string, error) {
	v.calls++
	return v.subject, nil
}
