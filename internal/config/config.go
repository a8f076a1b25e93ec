// Package config loads the external settings the map views consume at
// startup: the application version, the BCAT API base URL and the map
// engine access token.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is passed explicitly into the composition root. Values are not
// validated; a missing token or URL surfaces inside the map engine or the
// query transport.
type Config struct {
	AppVersion  string
	APIURL      string
	MapboxToken string
}

// Load reads an optional .env file into the process environment (existing
// variables win) and then returns FromEnv. A missing file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv reads each setting by its plain name, falling back to the
// VITE_-prefixed name used by the browser build.
func FromEnv() Config {
	return Config{
		AppVersion:  getenv("APP_VERSION", "dev"),
		APIURL:      strings.TrimRight(getenv("BCAT_API_URL", ""), "/"),
		MapboxToken: getenv("MAPBOX_TOKEN", ""),
	}
}

// GraphQLEndpoint is the query endpoint below the API base URL.
func (c Config) GraphQLEndpoint() string {
	if c.APIURL == "" {
		return ""
	}
	return c.APIURL + "/graphql"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	if v := os.Getenv("VITE_" + k); v != "" {
		return v
	}
	return def
}
