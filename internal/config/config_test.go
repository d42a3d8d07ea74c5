package config

import (
	"strings"
	"testing"
	"time"
)

// withSecret sets the one variable Load requires so the defaults path
// validates.
func withSecret(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	withSecret(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults = %s/%s/%s", cfg.Port, cfg.GinMode, cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %s", cfg.APIBasePath)
	}
	if cfg.MaxPhotoAge != 60*time.Second || cfg.PhotoBindDelay != 30*time.Second {
		t.Fatalf("timing windows = %v/%v", cfg.MaxPhotoAge, cfg.PhotoBindDelay)
	}
	if cfg.LoginLimit.MaxAttempts != 5 || cfg.LoginLimit.Window != 5*time.Minute {
		t.Fatalf("login limit = %+v", cfg.LoginLimit)
	}
	if cfg.CheckInLimit.MaxAttempts != 3 || cfg.FaceVerifyLimit.MaxAttempts != 5 {
		t.Fatalf("attempt limits = %+v/%+v", cfg.CheckInLimit, cfg.FaceVerifyLimit)
	}
	if cfg.Office.RadiusMeters != 50 {
		t.Fatalf("office radius = %v", cfg.Office.RadiusMeters)
	}
	if !cfg.Auth.SingleSession {
		t.Fatal("single-session must be the default")
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Fatalf("token ttl = %v", cfg.Auth.TokenTTL)
	}
	if cfg.MatcherURL != "http://localhost:5005" {
		t.Fatalf("matcher url = %s", cfg.MatcherURL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel defaults = %+v", cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	withSecret(t)
	t.Setenv("PORT", "9090")
	t.Setenv("GIN_MODE", "DEBUG")
	t.Setenv("LOG_LEVEL", "warning") // normalized to warn
	t.Setenv("API_BASE_PATH", "admin/")
	t.Setenv("BOT_ADMIN_IDS", "100, 200, bogus, 300")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ALLOW_MULTIPLE_SESSIONS", "true")
	t.Setenv("TOKEN_EXPIRE_HOURS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.GinMode != "debug" || cfg.LogLevel != "warn" {
		t.Fatalf("overrides = %s/%s/%s", cfg.Port, cfg.GinMode, cfg.LogLevel)
	}
	if cfg.APIBasePath != "/admin" {
		t.Fatalf("APIBasePath = %s; want normalized /admin", cfg.APIBasePath)
	}
	if len(cfg.Bot.AdminIDs) != 3 || cfg.Bot.AdminIDs[2] != 300 {
		t.Fatalf("admin ids = %v; malformed entries must be skipped", cfg.Bot.AdminIDs)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Auth.SingleSession {
		t.Fatal("ALLOW_MULTIPLE_SESSIONS=true must disable single-session")
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Fatalf("token ttl = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{"missing secret", map[string]string{"SECRET_KEY": ""}, "SECRET_KEY"},
		{"bad log level", map[string]string{"LOG_LEVEL": "chatty"}, "LOG_LEVEL"},
		{"zero radius", map[string]string{"OFFICE_RADIUS_METERS": "0"}, "OFFICE_RADIUS_METERS"},
		{"lat out of range", map[string]string{"OFFICE_LAT": "91"}, "out of range"},
		{"bad login limit", map[string]string{"LOGIN_MAX_ATTEMPTS": "0"}, "rate limits"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"zero ttl", map[string]string{"TOKEN_EXPIRE_HOURS": "0"}, "TOKEN_EXPIRE_HOURS"},
		{"bad sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"zero photo age", map[string]string{"MAX_PHOTO_AGE": "0s"}, "MAX_PHOTO_AGE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.env["SECRET_KEY"] == "" && tc.name != "missing secret" {
				withSecret(t)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Load = %v; want error mentioning %q", err, tc.wantSub)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"api", "/api"},
		{"/api/", "/api"},
		{"/api/v1", "/api/v1"},
		{"api/v1///", "/api/v1"},
	}
	for _, tc := range cases {
		if got := normalizeBasePath(tc.in); got != tc.want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad did not panic on invalid config")
		}
	}()
	MustLoad()
}
