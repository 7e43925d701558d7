package secret

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
)

// ErrMissingEnv reports ${VAR} references to unset variables.
var ErrMissingEnv = errors.New("secret: missing required environment variables")

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// dollarEscape stands in for "$$" while expanding.
const dollarEscape = "\x00FEEDGUARD_DOLLAR\x00"

// ExpandEnvStrict expands $VAR and ${VAR} in s. Every ${VAR} must be set;
// bare $VAR expands to "" when unset. "$$" yields a literal "$".
func ExpandEnvStrict(s string) (string, error) {
	s = strings.ReplaceAll(s, "$$", dollarEscape)

	missing := make(map[string]struct{})
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing[m[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		names := slices.Sorted(maps.Keys(missing))
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(names, ", "))
	}

	return strings.ReplaceAll(os.ExpandEnv(s), dollarEscape, "$"), nil
}
