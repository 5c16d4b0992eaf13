package observability

import (
	"strings"

	"github.com/smallbiznis/pearlsonic/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	ratio := obs.OtelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	protocol := "grpc"
	if strings.HasPrefix(obs.OtelProtocol, "http") {
		protocol = "http"
	}

	return Config{
		ServiceName:          orDefault(cfg.AppName, "pearlsonic"),
		Environment:          orDefault(cfg.Environment, "development"),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             orDefault(obs.LogLevel, "info"),
		LogFormat:            orDefault(obs.LogFormat, "json"),
		OtelEnabled:          obs.OtelEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on request dumps and stack traces. It is never on in production.
func (c Config) Debug() bool {
	switch strings.ToLower(c.Environment) {
	case "production":
		return false
	case "dev", "development", "local", "test":
		return true
	}
	return strings.EqualFold(c.LogLevel, "debug")
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}
