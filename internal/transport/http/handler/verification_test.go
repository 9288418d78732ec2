package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carpschool/access-api/internal/application/ratelimit"
	"github.com/carpschool/access-api/internal/config"
	"github.com/carpschool/access-api/internal/domain"
	jwtinfra "github.com/carpschool/access-api/internal/infrastructure/jwt"
	"github.com/carpschool/access-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) IssueEmailCode(ctx context.Context, accountID, email, captchaToken, captchaAnswer string) error {
	return m.Called(ctx, accountID, email, captchaToken, captchaAnswer).Error(0)
}

func (m *mockVerificationSvc) ChallengeEmailCode(ctx context.Context, accountID, code string) error {
	return m.Called(ctx, accountID, code).Error(0)
}

func (m *mockVerificationSvc) Status(ctx context.Context, accountID string) (*domain.ChallengeStatus, error) {
	args := m.Called(ctx, accountID)
	if s, _ := args.Get(0).(*domain.ChallengeStatus); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for the given account.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, accountID string, body []byte) *http.Request {
	t.Helper()
	token, err := p.Sign(accountID, "sfu")
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

func testAdmission() *ratelimit.Ephemeral {
	return ratelimit.NewEphemeral(ratelimit.EphemeralDeps{
		SweepInterval: time.Minute,
		FlushInterval: time.Minute,
		Retention:     time.Hour,
	})
}

// --- IssueCode tests ---

func TestIssueCode_MissingClaims(t *testing.T) {
	h := NewVerificationHandler(&mockVerificationSvc{}, testAdmission())
	r := httptest.NewRequest(http.MethodPost, "/v1/verification/email-code", nil)
	rr := httptest.NewRecorder()
	h.IssueCode(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIssueCode_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("IssueEmailCode", mock.Anything, "acct", "student@sfu.ca", "tok", "ans").Return(nil)
	h := NewVerificationHandler(svc, testAdmission())
	body, _ := json.Marshal(map[string]string{
		"email": "student@sfu.ca", "captcha_token": "tok", "captcha_answer": "ans",
	})

	r := bearerReq(t, p, http.MethodPost, "/v1/verification/email-code", "acct", body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.IssueCode), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestIssueCode_EmailTaken_Conflict(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("IssueEmailCode", mock.Anything, "acct", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrEmailTaken)
	h := NewVerificationHandler(svc, testAdmission())
	body, _ := json.Marshal(map[string]string{"email": "x@sfu.ca", "captcha_token": "t", "captcha_answer": "a"})

	r := bearerReq(t, p, http.MethodPost, "/v1/verification/email-code", "acct", body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.IssueCode), rr, r)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

// --- ChallengeCode tests ---

func TestChallengeCode_Mismatch_ReportsKindAndRemaining(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("ChallengeEmailCode", mock.Anything, "acct", "000000").
		Return(&domain.CodeMismatchError{AttemptsRemaining: 3})
	h := NewVerificationHandler(svc, testAdmission())
	body, _ := json.Marshal(map[string]string{"code": "000000"})

	r := bearerReq(t, p, http.MethodPost, "/v1/verification/email-code/challenge", "acct", body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.ChallengeCode), rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp MessageEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "code_mismatch", resp.Kind)
	require.NotNil(t, resp.AttemptsRemaining)
	assert.Equal(t, 3, *resp.AttemptsRemaining)
}

func TestChallengeCode_Expired_ReportsKind(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("ChallengeEmailCode", mock.Anything, "acct", "123456").Return(domain.ErrChallengeExpired)
	h := NewVerificationHandler(svc, testAdmission())
	body, _ := json.Marshal(map[string]string{"code": "123456"})

	r := bearerReq(t, p, http.MethodPost, "/v1/verification/email-code/challenge", "acct", body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.ChallengeCode), rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp MessageEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "challenge_expired", resp.Kind)
}

// --- Status tests ---

func TestStatus_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("Status", mock.Anything, "acct").
		Return(&domain.ChallengeStatus{Pending: true, Email: "student@sfu.ca", Attempts: 1, MaxAttempts: 5}, nil)
	h := NewVerificationHandler(svc, testAdmission())

	r := bearerReq(t, p, http.MethodGet, "/v1/verification/status", "acct", nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Status), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.ChallengeStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Pending)
}

func TestStatus_RapidSecondRead_RateLimited(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockVerificationSvc{}
	svc.On("Status", mock.Anything, "acct").Return(&domain.ChallengeStatus{Pending: false}, nil)
	h := NewVerificationHandler(svc, testAdmission())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		r := bearerReq(t, p, http.MethodGet, "/v1/verification/status", "acct", nil)
		rr := httptest.NewRecorder()
		serveAuthed(p, http.HandlerFunc(h.Status), rr, r)
		assert.Equal(t, want, rr.Code, "request %d", i)
	}
}
