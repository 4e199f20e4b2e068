package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/config"
	jwtpkg "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/jwt"
	"go.uber.org/zap"
)

// applyRuntimeSettings installs process-wide settings: the JWT secret and
// the local timezone.
func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) error {
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return nil
}

// loadLocation accepts an IANA zone name or a fixed "+07:00" offset.
func loadLocation(tz string) (*time.Location, error) {
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if t, err := time.Parse("-07:00", tz); err == nil {
		_, offset := t.Zone()
		return time.FixedZone(tz, offset), nil
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. Asia/Bangkok) or UTC offset (e.g. +07:00)")
}

// uptime renders d at a resolution that shrinks as it grows.
func uptime(d time.Duration) string {
	switch {
	case d < time.Hour:
		return d.Truncate(time.Second).String()
	case d < 24*time.Hour:
		return d.Truncate(time.Minute).String()
	default:
		days := d / (24 * time.Hour)
		return fmt.Sprintf("%dd%s", days, (d - days*24*time.Hour).Truncate(time.Hour))
	}
}
