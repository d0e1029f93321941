// Package template expands candidate path templates.
package template

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand expands the placeholders in a candidate path template.
//
// Supported placeholders:
//
//	{home}     - current user's home directory
//	{user}     - current username
//	{appdata}  - OS user config directory (os.UserConfigDir)
//	{appname}  - application name from configuration
//	{tempdir}  - OS temp directory
//	{hostname} - system hostname (domain stripped)
//	${ENV}     - environment variable reference
//
// Unresolvable placeholders and empty environment references fail the
// expansion; the resolver skips such candidates rather than aborting.
func Expand(tmpl, appName string) (string, error) {
	values := map[string]string{
		"appname": appName,
		"tempdir": os.TempDir(),
	}

	if home, err := os.UserHomeDir(); err == nil {
		values["home"] = home
	}
	if cfgDir, err := os.UserConfigDir(); err == nil {
		values["appdata"] = cfgDir
	}
	if u, err := user.Current(); err == nil {
		values["user"] = u.Username
	}
	if h, err := os.Hostname(); err == nil {
		values["hostname"] = strings.Split(h, ".")[0]
	}

	result := tmpl
	for key, value := range values {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}

	// Any placeholder left means its source was unavailable.
	if i := strings.IndexByte(result, '{'); i >= 0 && strings.IndexByte(result[i:], '}') > 0 {
		return "", fmt.Errorf("unresolved placeholder in template %q", tmpl)
	}

	var missing []string
	result = os.Expand(result, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined environment variable %s in template %q", missing[0], tmpl)
	}

	return filepath.Clean(result), nil
}
