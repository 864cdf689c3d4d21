package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "bridge", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Provider: ProviderConfig{
			BaseURL:      "https://api.example.com/v2",
			APIKey:       "key",
			ConnectionID: "conn-1",
			FromNumber:   "+15550009999",
		},
		Bridge: BridgeConfig{
			DialTimeoutSeconds: 30,
			RecordingFormat:    "mp3",
			RecordingChannels:  "dual",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ProductionRequiresIssuerAndAudience(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without issuer/audience")
	}
	if !strings.Contains(err.Error(), "JWT_ISSUER") {
		t.Fatalf("expected JWT_ISSUER error, got %v", err)
	}
}

func TestValidate_RejectsUnknownRecordingFormat(t *testing.T) {
	c := validConfig()
	c.Bridge.RecordingFormat = "flac"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unsupported recording format")
	}
}

func TestValidate_RejectsMissingProvider(t *testing.T) {
	c := validConfig()
	c.Provider.APIKey = ""
	c.Provider.ConnectionID = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected provider validation error")
	}
	if !strings.Contains(err.Error(), "PROVIDER_API_KEY") || !strings.Contains(err.Error(), "PROVIDER_CONNECTION_ID") {
		t.Fatalf("expected both provider errors, got %v", err)
	}
}
