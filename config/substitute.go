package config

import (
	"fmt"
	"os"
	"regexp"
)

// varPattern matches the three admissible substitution forms: "${VAR}",
// "${VAR:-default}", and "${VAR:?message}".
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*)|:\?([^}]*))?\}`)

// Substitute expands environment variable references in raw using
// os.Getenv as the lookup source. A bare "${VAR}" with no default and no
// set environment variable expands to the empty string; "${VAR:-default}"
// falls back to default; "${VAR:?message}" returns an error with message
// when VAR is unset.
func Substitute(raw string) (string, error) {
	var firstErr error
	result := varPattern.ReplaceAllStringFunc(raw, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := varPattern.FindStringSubmatch(match)
		name, suffix, defaultVal, message := groups[1], groups[2], groups[3], groups[4]
		value, set := os.LookupEnv(name)
		switch {
		case len(suffix) >= 2 && suffix[:2] == ":-":
			if set && value != "" {
				return value
			}
			return defaultVal
		case len(suffix) >= 2 && suffix[:2] == ":?":
			if set {
				return value
			}
			firstErr = fmt.Errorf("required environment variable %s is not set: %s", name, message)
			return match
		default:
			return value
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
