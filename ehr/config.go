package ehr

import (
	"errors"
	"net/url"
	"time"
)

// Config configures the generic FHIR server connection.
type Config struct {
	// BaseURL is the FHIR base URL of the server used in generic FHIR mode.
	BaseURL string `koanf:"baseurl"`
	// Timeout bounds every remote call.
	Timeout time.Duration `koanf:"timeout"`
	// MaxPages bounds how many search result pages are followed when syncing observations.
	MaxPages int `koanf:"maxpages"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://twcore.hapi.fhir.tw/fhir",
		Timeout:  30 * time.Second,
		MaxPages: 1,
	}
}

func (c Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() {
			return errors.New("fhir.baseurl must be an absolute URL")
		}
	}
	if c.Timeout <= 0 {
		return errors.New("fhir.timeout must be positive")
	}
	if c.MaxPages < 1 {
		return errors.New("fhir.maxpages must be at least 1")
	}
	return nil
}
