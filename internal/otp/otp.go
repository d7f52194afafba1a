// Package otp issues and checks one-time codes that verify a customer phone.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"
	"bookingsync/internal/logging"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrCodeMismatch = errors.New("code does not match")
	// ErrCodeExpired is returned when no code is active for the phone.
	ErrCodeExpired = errors.New("code expired or not requested")
	ErrRateLimited = errors.New("too many code requests")
)

// maxVerifyAttempts bounds wrong guesses per code lifetime.
const maxVerifyAttempts = 5

func verifyKey(phone string) string { return "otp_verify:" + phone }

// Sender delivers a code to the customer.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Limiter is the counter used to throttle requests and guesses.
type Limiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	ResetRateLimit(ctx context.Context, key string) error
}

type Service struct {
	codes   domain.CodeRepository
	limiter Limiter
	sender  Sender
	cfg     config.OTPConfig
	logger  *zerolog.Logger
}

func NewService(codes domain.CodeRepository, limiter Limiter, sender Sender, cfg config.OTPConfig, logger *zerolog.Logger) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 3
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = 10 * time.Minute
	}
	return &Service{
		codes:   codes,
		limiter: limiter,
		sender:  sender,
		cfg:     cfg,
		logger:  logging.Component(logger, "otp"),
	}
}

// RequestCode issues a new code for phone, replacing any active one, and
// returns the normalised phone.
func (s *Service) RequestCode(ctx context.Context, phone string) (string, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	allowed, err := s.limiter.CheckRateLimit(ctx, "otp_request:"+phone, s.cfg.RequestLimit, s.cfg.RequestWindow)
	if err != nil {
		return "", fmt.Errorf("check request limit: %w", err)
	}
	if !allowed {
		return "", ErrRateLimited
	}

	code, err := GenerateCode(models.OTPLength)
	if err != nil {
		return "", err
	}
	if err := s.codes.SetCode(ctx, phone, code, s.cfg.CodeTTL); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	// Guesses are counted per code; a fresh code starts from zero.
	if err := s.limiter.ResetRateLimit(ctx, verifyKey(phone)); err != nil {
		return "", fmt.Errorf("reset verify limit: %w", err)
	}
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		_ = s.codes.DeleteCode(ctx, phone)
		return "", fmt.Errorf("send code: %w", err)
	}

	s.logger.Info().Str("phone", logging.MaskPhone(phone)).Msg("Verification code issued")
	return phone, nil
}

// Verify checks code against the active code for phone. A matching code is
// consumed.
func (s *Service) Verify(ctx context.Context, phone, code string) (string, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	active, err := s.codes.GetCode(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("load code: %w", err)
	}
	if active == "" {
		return "", ErrCodeExpired
	}

	allowed, err := s.limiter.CheckRateLimit(ctx, verifyKey(phone), maxVerifyAttempts, s.cfg.CodeTTL)
	if err != nil {
		return "", fmt.Errorf("check verify limit: %w", err)
	}
	if !allowed {
		_ = s.codes.DeleteCode(ctx, phone)
		return "", ErrRateLimited
	}

	code = strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(code), []byte(active)) != 1 {
		s.logger.Warn().Str("phone", logging.MaskPhone(phone)).Msg("Verification code mismatch")
		return "", ErrCodeMismatch
	}
	if err := s.codes.DeleteCode(ctx, phone); err != nil {
		return "", fmt.Errorf("consume code: %w", err)
	}
	return phone, nil
}

// GenerateCode returns n random decimal digits.
func GenerateCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// NormalizePhone strips separators and a +91, 91 or 0 prefix and requires a
// 10-digit national number.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}

	p := digits.String()
	switch {
	case len(p) == 12 && strings.HasPrefix(p, "91"):
		p = p[2:]
	case len(p) == 11 && strings.HasPrefix(p, "0"):
		p = p[1:]
	}
	if len(p) != 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return p, nil
}

// LogSender writes codes to the log. Used when no SMS gateway is configured.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logging.Component(logger, "otp_sender")}
}

func (s *LogSender) SendCode(_ context.Context, phone, code string) error {
	s.logger.Debug().Str("phone", logging.MaskPhone(phone)).Str("code", code).Msg("Verification code")
	return nil
}
