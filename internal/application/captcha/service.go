package captcha

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/carpschool/access-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Alphabet excludes visually ambiguous glyphs (0/O, 1/I/l).
const answerAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const answerLength = 5

// Store is the persistence surface for captcha sessions.
type Store interface {
	Put(ctx context.Context, c *domain.CaptchaSession) error
	Get(ctx context.Context, token string) (*domain.CaptchaSession, error)
	MarkUsed(ctx context.Context, token string) error
	IncrementAttempts(ctx context.Context, token string) (int, error)
}

// Challenge is a freshly generated puzzle: the opaque session token plus an
// inline SVG for the client to render. The answer never leaves the server.
type Challenge struct {
	Token string `json:"token"`
	SVG   string `json:"svg"`
}

// Service issues and verifies single-use human-verification puzzles.
type Service interface {
	Generate(ctx context.Context) (*Challenge, error)
	Verify(ctx context.Context, token, answer string) error
}

type ServiceDeps struct {
	CaptchaRepo Store
	Expiry      time.Duration
	MaxAttempts int
}

type service struct {
	captchas    Store
	expiry      time.Duration
	maxAttempts int
}

func NewService(deps ServiceDeps) Service {
	return &service{
		captchas:    deps.CaptchaRepo,
		expiry:      deps.Expiry,
		maxAttempts: deps.MaxAttempts,
	}
}

func (s *service) Generate(ctx context.Context) (*Challenge, error) {
	answer, err := randomAnswer()
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(answer), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash answer: %w", err)
	}
	tokenBytes := make([]byte, 16)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	now := time.Now().UTC()
	session := &domain.CaptchaSession{
		Token:      token,
		AnswerHash: hash,
		ExpiresAt:  now.Add(s.expiry).Unix(),
		CreatedAt:  now.Unix(),
	}
	if err := s.captchas.Put(ctx, session); err != nil {
		return nil, err
	}
	return &Challenge{Token: token, SVG: renderSVG(answer)}, nil
}

// Verify consumes one attempt against the session. Any failure path returns
// ErrInvalidCaptcha so callers cannot distinguish a wrong answer from a
// missing, expired, spent, or exhausted session.
func (s *service) Verify(ctx context.Context, token, answer string) error {
	if token == "" || answer == "" {
		return fmt.Errorf("missing captcha token or answer: %w", domain.ErrInvalidCaptcha)
	}
	session, err := s.captchas.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("captcha session: %w", domain.ErrInvalidCaptcha)
	}
	now := time.Now().UTC()
	if now.Unix() > session.ExpiresAt {
		return fmt.Errorf("captcha expired: %w", domain.ErrInvalidCaptcha)
	}
	if session.Used {
		return fmt.Errorf("captcha already used: %w", domain.ErrInvalidCaptcha)
	}
	if session.Attempts >= s.maxAttempts {
		return fmt.Errorf("captcha attempts exhausted: %w", domain.ErrInvalidCaptcha)
	}

	normalized := strings.ToUpper(strings.TrimSpace(answer))
	if bcrypt.CompareHashAndPassword(session.AnswerHash, []byte(normalized)) != nil {
		attempts, incErr := s.captchas.IncrementAttempts(ctx, token)
		if incErr == nil && attempts >= s.maxAttempts {
			// Exhausted sessions are retired so further guesses stop early.
			_ = s.captchas.MarkUsed(ctx, token)
		}
		return fmt.Errorf("wrong captcha answer: %w", domain.ErrInvalidCaptcha)
	}

	return s.captchas.MarkUsed(ctx, token)
}

func randomAnswer() (string, error) {
	b := make([]byte, answerLength)
	max := big.NewInt(int64(len(answerAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = answerAlphabet[n.Int64()]
	}
	return string(b), nil
}

// renderSVG draws the answer as jittered text. Deliberately simple: the gate
// deters scripted abuse, it is not an OCR arms race.
func renderSVG(answer string) string {
	var sb strings.Builder
	sb.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="150" height="50" viewBox="0 0 150 50">`)
	sb.WriteString(`<rect width="150" height="50" fill="#f4f4f4"/>`)
	for i, ch := range answer {
		x := 18 + i*26
		y := 30 + (i%3)*5
		rotate := (i%5 - 2) * 8
		fmt.Fprintf(&sb,
			`<text x="%d" y="%d" font-family="monospace" font-size="26" fill="#333" transform="rotate(%d %d %d)">%c</text>`,
			x, y, rotate, x, y, ch)
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}
