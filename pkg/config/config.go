// Package config parses the environment variables enumerated in spec §6
// into a typed struct with defaults, generalizing the teacher's envOr
// helper in cmd/authsvc/main.go.
package config

import (
	"os"
	"strconv"
)

// Config is every environment-driven setting the core reads at startup.
type Config struct {
	LogLevel  string // LOG_LEVEL
	LogFormat string // LOG_FORMAT: console|json

	JWTSecret string // JWT_SECRET

	RedisHost     string // REDIS_HOST
	RedisPassword string // REDIS_PASSWORD

	Secure bool // SECURE

	SupportKubernetesCRD bool   // SUPPORT_KUBERNETES_CRD
	ScopedKubernetesCRD   bool   // SCOPED_KUBERNETES_CRD
	Namespace             string // NAMESPACE

	ResourcesRoot string // resources root (file-source config dir)
	ViewRoot      string // local template view root

	TemplateBucket string // S3_TEMPLATE_BUCKET: when set, templates are served from S3 instead of ViewRoot
	TemplatePrefix string // S3_TEMPLATE_PREFIX
	AWSRegion      string // AWS_REGION

	// AWSAccessKeyID/AWSSecretAccessKey, when both set, pin the S3 client to
	// static credentials instead of the default provider chain (IAM role,
	// env vars, shared config) — useful outside EC2/EKS deployments.
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY

	OTLPEndpoint string // OTEL_EXPORTER_OTLP_ENDPOINT

	Hostname string // --hostname
	Port     int    // --port
	Env      string // --env
}

// FromEnv reads every variable from the process environment, applying the
// defaults a development deployment would want.
func FromEnv() Config {
	return Config{
		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "console"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		Secure: envBool("SECURE", false),

		SupportKubernetesCRD: envBool("SUPPORT_KUBERNETES_CRD", false),
		ScopedKubernetesCRD:  envBool("SCOPED_KUBERNETES_CRD", true),
		Namespace:            envOr("NAMESPACE", "default"),

		ResourcesRoot: envOr("RESOURCES_ROOT", "./resources"),
		ViewRoot:      envOr("VIEW_ROOT", "./views"),

		TemplateBucket: os.Getenv("S3_TEMPLATE_BUCKET"),
		TemplatePrefix: envOr("S3_TEMPLATE_PREFIX", ""),
		AWSRegion:      envOr("AWS_REGION", "us-east-1"),

		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Hostname: envOr("HOSTNAME", "0.0.0.0"),
		Port:     envInt("PORT", 8080),
		Env:      envOr("ENV", "development"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// IsProduction reports whether Env names a production-like environment;
// used by the /login handler to decide whether an absent UserLoginProvider
// is a hard failure (NO_LOGIN_PROVIDER) or permits anonymous login, per
// spec §4.G.4.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}
