// Package credential resolves the upstream API key from an ordered chain of sources.
package credential

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingCredential indicates that no source produced a usable key.
var ErrMissingCredential = errors.New("upstream api key is not configured")

// Source looks up a credential. It returns an empty string when it has nothing to offer.
type Source struct {
	Name   string
	Lookup func() string
}

// Chain tries each source in order and returns the first non-blank value.
type Chain []Source

// Resolve walks the chain. It fails with ErrMissingCredential when every source is blank.
func (c Chain) Resolve() (string, error) {
	for _, src := range c {
		if src.Lookup == nil {
			continue
		}
		if value := strings.TrimSpace(src.Lookup()); value != "" {
			return value, nil
		}
	}
	return "", ErrMissingCredential
}

// Names lists the configured sources, in resolution order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c))
	for _, src := range c {
		names = append(names, src.Name)
	}
	return names
}

// FromEnv reads the named environment variable at lookup time.
func FromEnv(name string) Source {
	return Source{
		Name:   "env:" + name,
		Lookup: func() string { return os.Getenv(name) },
	}
}

// FromStatic returns a fixed value, typically taken from the config file.
func FromStatic(value string) Source {
	return Source{
		Name:   "config",
		Lookup: func() string { return value },
	}
}

// FromDotenvFile scans path line by line for a KEY=VALUE line naming key.
// The file is optional: a missing file and lines that do not parse yield nothing.
func FromDotenvFile(path, key string) Source {
	return Source{
		Name: "file:" + path,
		Lookup: func() string {
			if path == "" {
				return ""
			}
			value, _ := lookupDotenvFile(path, key)
			return value
		},
	}
}

func lookupDotenvFile(path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values, err := godotenv.Unmarshal(line)
		if err != nil {
			continue
		}
		if value, ok := values[key]; ok {
			return value, nil
		}
	}
	return "", scanner.Err()
}
