package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// Email-verification protocol parameters. Kept as named configuration
	// rather than constants at call sites so operators can tune them.
	Verification VerificationParams

	// Ephemeral admission-control limiter.
	AdmissionSweepInterval time.Duration
	AdmissionRetention     time.Duration
	AdmissionFlushInterval time.Duration

	SNSRegion        string
	AuditTopicARN    string // empty disables audit publishing
	AllowedOrigins   []string
	CaptchaExpiry    time.Duration
	CaptchaAttempts  int
}

// VerificationParams configures the email-ownership verification state machine.
type VerificationParams struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts     string
	Institutions string
	Challenges   string
	RateLimits   string
	Captchas     string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:     getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			Institutions: getEnv("DYNAMO_TABLE_INSTITUTIONS", "institutions"),
			Challenges:   getEnv("DYNAMO_TABLE_EMAIL_CHALLENGES", "email_challenges"),
			RateLimits:   getEnv("DYNAMO_TABLE_RATE_LIMITS", "rate_limits"),
			Captchas:     getEnv("DYNAMO_TABLE_CAPTCHAS", "captchas"),
		},

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		Verification: VerificationParams{
			CodeLength:  getEnvInt("VERIFICATION_CODE_LENGTH", 6),
			Expiry:      time.Duration(getEnvInt("VERIFICATION_EXPIRY_MINUTES", 15)) * time.Minute,
			MaxAttempts: getEnvInt("VERIFICATION_MAX_ATTEMPTS", 5),
		},

		AdmissionSweepInterval: time.Duration(getEnvInt("ADMISSION_SWEEP_MINUTES", 5)) * time.Minute,
		AdmissionRetention:     time.Duration(getEnvInt("ADMISSION_RETENTION_MINUTES", 60)) * time.Minute,
		AdmissionFlushInterval: time.Duration(getEnvInt("ADMISSION_FLUSH_SECONDS", 60)) * time.Second,

		SNSRegion:       getEnv("SNS_REGION", "us-east-1"),
		AuditTopicARN:   getEnv("AUDIT_TOPIC_ARN", ""),
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		CaptchaExpiry:   time.Duration(getEnvInt("CAPTCHA_EXPIRY_MINUTES", 10)) * time.Minute,
		CaptchaAttempts: getEnvInt("CAPTCHA_MAX_ATTEMPTS", 3),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
