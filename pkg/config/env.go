package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"

	"github.com/reagentlabs/reagent/pkg/logger"
)

var (
	envVarWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)
	envVarBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
// .env.local takes precedence over .env.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Get().Warn("failed to load env file", "path", path, "error", err)
			continue
		}
		logger.Get().Debug("loaded env file", "path", path)
	}
}

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references in s
// with values from the environment.
func ExpandEnvVars(s string) string {
	s = envVarWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarWithDefault.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
	s = envVarBraced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarBraced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})
	return s
}
