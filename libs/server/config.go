package server

import (
	"strings"
)

// CorsConfig 跨域配置
type CorsConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`
}

func DefaultCorsConfig(origins []string) *CorsConfig {
	return &CorsConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}
}

// IsOriginAllowed matches origin exactly against the allow-list, ignoring a trailing slash.
func (c *CorsConfig) IsOriginAllowed(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.TrimRight(allowed, "/") == origin {
			return true
		}
	}
	return false
}
