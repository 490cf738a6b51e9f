package core

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotenv reads a key-value .env file and returns its entries.
// A missing file returns an empty map; the .env file is optional.
// Lines are KEY=VALUE, values may be single or double quoted, and
// lines starting with # are comments.
func LoadDotenv(path string) map[string]string {
	env := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		return env
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		value = strings.Trim(value, `'`)
		env[strings.TrimSpace(key)] = value
	}

	return env
}
