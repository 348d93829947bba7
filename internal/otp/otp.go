// Package otp issues and verifies short-lived one-time codes that gate sensitive
// wallet operations.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/notification"
)

// Purpose scopes a challenge to one kind of operation.
type Purpose string

const (
	PurposeWithdrawal Purpose = "WITHDRAWAL"
	PurposeTransfer   Purpose = "TRANSFER"
	PurposeInvestment Purpose = "INVESTMENT_WITHDRAWAL"
)

// ParsePurpose validates a purpose received from a client.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(strings.ToUpper(strings.TrimSpace(s))); p {
	case PurposeWithdrawal, PurposeTransfer, PurposeInvestment:
		return p, nil
	}
	return "", ErrInvalidPurpose
}

// Config holds the gate's tunables.
type Config struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	CodeLength     int
	MaxAttempts    int
	// BypassCode is accepted in place of the issued code. Ignored when Production is set.
	BypassCode string
	Production bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, ResendCooldown: 60 * time.Second, CodeLength: 6, MaxAttempts: 3, Production: true}
}

func (c Config) bypassEnabled() bool {
	return !c.Production && c.BypassCode != ""
}

// Challenge is the stored state of one issued code. Code holds a digest, never the
// plain code.
type Challenge struct {
	Code      string
	Attempts  int
	Verified  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store persists challenges. Both operations must be atomic per key.
type Store interface {
	// Put replaces the challenge under key. A positive cooldown makes it fail with
	// ErrRateLimited while the previous challenge is younger than cooldown.
	Put(ctx context.Context, key string, ch Challenge, cooldown time.Duration) error
	// Check runs the verification sequence and marks the challenge used on success.
	// bypass, when non-empty, is a digest accepted in place of the stored one.
	Check(ctx context.Context, key, digest, bypass string, now time.Time, maxAttempts int) error
}

// Sender delivers the code out of band.
type Sender interface {
	Dispatch(message notification.Message)
}

// Issued is returned to the caller after a code is generated.
type Issued struct {
	Code             string
	ExpiresInSeconds int
}

// Gate issues and verifies one-time codes.
type Gate struct {
	store   Store
	cfg     Config
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// NewGate constructs a gate. sender may be nil.
func NewGate(store Store, cfg Config, sender Sender, logger *slog.Logger, opts ...Option) *Gate {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	g := &Gate{store: store, cfg: cfg, sender: sender, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue replaces any active challenge for (subject, purpose) with a fresh code and
// sends it to the subject.
func (g *Gate) Issue(ctx context.Context, subject string, purpose Purpose) (Issued, error) {
	return g.issue(ctx, subject, purpose, 0)
}

// Resend is Issue guarded by the resend cooldown.
func (g *Gate) Resend(ctx context.Context, subject string, purpose Purpose) (Issued, error) {
	return g.issue(ctx, subject, purpose, g.cfg.ResendCooldown)
}

func (g *Gate) issue(ctx context.Context, subject string, purpose Purpose, cooldown time.Duration) (Issued, error) {
	code, err := generateCode(g.cfg.CodeLength)
	if err != nil {
		return Issued{}, fmt.Errorf("generate code: %w", err)
	}
	now := g.now()
	ch := Challenge{Code: digest(code), IssuedAt: now, ExpiresAt: now.Add(g.cfg.TTL)}
	if err := g.store.Put(ctx, key(subject, purpose), ch, cooldown); err != nil {
		return Issued{}, err
	}

	if g.sender != nil {
		g.sender.Dispatch(notification.Message{
			Kind:        notification.KindOTP,
			Destination: subject,
			Body:        fmt.Sprintf("Your %s verification code is %s", strings.ToLower(string(purpose)), code),
		})
	}
	g.logger.InfoContext(ctx, "otp issued", slog.String("subject", subject), slog.String("purpose", string(purpose)))
	return Issued{Code: code, ExpiresInSeconds: int(g.cfg.TTL.Seconds())}, nil
}

// Verify checks code against the active challenge. A successful verification
// consumes the challenge.
func (g *Gate) Verify(ctx context.Context, subject string, purpose Purpose, code string) error {
	var bypass string
	if g.cfg.bypassEnabled() {
		bypass = digest(g.cfg.BypassCode)
	}
	err := g.store.Check(ctx, key(subject, purpose), digest(strings.TrimSpace(code)), bypass, g.now(), g.cfg.MaxAttempts)

	result := "OK"
	if err != nil {
		result = apperr.Code(err)
	}
	g.metrics.OTPVerification(string(purpose), result)
	return err
}

func key(subject string, purpose Purpose) string {
	return "otp:v1:" + subject + ":" + string(purpose)
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
