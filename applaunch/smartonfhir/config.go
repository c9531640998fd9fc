package smartonfhir

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Enabled bool                    `koanf:"enabled"`
	Issuer  map[string]IssuerConfig `koanf:"issuer"`
	// Scopes are requested in the authorization request, next to the OpenID scopes.
	Scopes []string `koanf:"scopes"`
}

type IssuerConfig struct {
	URL       string `koanf:"url"`
	ClientID  string `koanf:"clientid"`
	OAuth2URL string `koanf:"oauth2url"`
}

func DefaultConfig() Config {
	return Config{
		Scopes: []string{
			"launch",
			"launch/patient",
			"patient/Patient.read",
			"patient/Observation.read",
			"patient/Observation.write",
			"patient/Condition.read",
			"patient/MedicationRequest.read",
			"patient/DiagnosticReport.read",
		},
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Issuer) == 0 {
		return errors.New("at least one issuer is required")
	}
	for key, issuer := range c.Issuer {
		if !strings.HasPrefix(issuer.URL, "https://") && !strings.HasPrefix(issuer.URL, "http://") {
			return fmt.Errorf("issuer %s URL must start with http:// or https://", key)
		}
		if issuer.ClientID == "" {
			return fmt.Errorf("issuer %s clientid is required", key)
		}
		if issuer.OAuth2URL != "" && !strings.HasPrefix(issuer.OAuth2URL, "https://") && !strings.HasPrefix(issuer.OAuth2URL, "http://") {
			return fmt.Errorf("issuer %s oauth2url must start with http:// or https://", key)
		}
	}
	return nil
}
