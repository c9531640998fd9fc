package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/SanteonNL/bptrafficlight/applaunch/smartonfhir"
	"github.com/SanteonNL/bptrafficlight/ehr"
	"github.com/SanteonNL/bptrafficlight/lib/otel"
	"github.com/SanteonNL/bptrafficlight/storage"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

const envPrefix = "BPTL_"

type Config struct {
	// Public holds the configuration for the public interface.
	Public     InterfaceConfig `koanf:"public"`
	LogLevel   zerolog.Level   `koanf:"loglevel"`
	StrictMode bool            `koanf:"strictmode"`
	// Storage selects where readings, thresholds and the lock are persisted.
	Storage storage.Config `koanf:"storage"`
	// FHIR holds the generic FHIR server connection.
	FHIR ehr.Config `koanf:"fhir"`
	// SMARTOnFHIR holds the EHRs that may launch the application.
	SMARTOnFHIR smartonfhir.Config `koanf:"sof"`
	Display     DisplayConfig      `koanf:"display"`
	Import      ImportConfig       `koanf:"import"`
	Session     SessionConfig      `koanf:"session"`
	// OpenTelemetry holds the configuration for observability
	OpenTelemetry otel.Config `koanf:"opentelemetry"`
}

func (c Config) Validate() error {
	if c.Public.URL == "" {
		return errors.New("public base URL is not configured")
	}
	if _, err := url.Parse(c.Public.URL); err != nil {
		return errors.New("invalid public base URL")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	if err := c.FHIR.Validate(); err != nil {
		return fmt.Errorf("invalid FHIR configuration: %w", err)
	}
	if err := c.SMARTOnFHIR.Validate(); err != nil {
		return fmt.Errorf("invalid SMART on FHIR configuration: %w", err)
	}
	if c.SMARTOnFHIR.Enabled && !c.Public.ParseURL().IsAbs() {
		return errors.New("public base URL must be absolute when SMART on FHIR is enabled")
	}
	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("invalid display configuration: %w", err)
	}
	if c.Import.MaxSize <= 0 {
		return errors.New("import.maxsize must be positive")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session.lifetime must be positive")
	}
	if err := c.OpenTelemetry.Validate(); err != nil {
		return fmt.Errorf("invalid OpenTelemetry configuration: %w", err)
	}
	return nil
}

// InterfaceConfig holds the configuration for an HTTP interface.
type InterfaceConfig struct {
	// Address holds the address to listen on.
	Address string `koanf:"address"`
	// URL holds the base URL of the interface.
	// Set it in case the service is behind a reverse proxy that maps it to a different URL than root (/).
	URL string `koanf:"url"`
}

func (i InterfaceConfig) ParseURL() *url.URL {
	u, _ := url.Parse(i.URL)
	return u
}

// DisplayConfig determines how timestamps and labels are presented.
type DisplayConfig struct {
	// Locale is a BCP-47 language tag, e.g. zh-TW, en or nl.
	Locale string `koanf:"locale"`
	// Timezone is an IANA time zone name. Smartwatch timestamps without offset are read in this zone.
	Timezone string `koanf:"timezone"`
}

func (d DisplayConfig) Validate() error {
	if _, err := language.Parse(d.Locale); err != nil {
		return fmt.Errorf("invalid display.locale %q: %w", d.Locale, err)
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return fmt.Errorf("invalid display.timezone %q: %w", d.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone, or UTC if it can't be loaded.
func (d DisplayConfig) Location() *time.Location {
	location, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return location
}

type ImportConfig struct {
	// MaxSize is the maximum size of a smartwatch export in bytes.
	MaxSize int64 `koanf:"maxsize"`
}

type SessionConfig struct {
	// Lifetime is the idle time after which a SMART on FHIR session ends.
	Lifetime time.Duration `koanf:"lifetime"`
}

// LoadConfig loads the configuration from the environment. Variables in a .env file in the working directory are loaded first,
// without overriding variables that are already set.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	result := DefaultConfig()
	err := loadConfigInto(&result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func loadConfigInto(target any) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key string, value string) (string, interface{}) {
		key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".", -1)
		if len(value) == 0 {
			return key, nil
		}
		sliceValues := splitWithEscaping(value, ",", "\\")
		for i, s := range sliceValues {
			sliceValues[i] = strings.TrimSpace(s)
		}
		var parsedValue any = sliceValues
		if len(sliceValues) == 1 {
			parsedValue = sliceValues[0]
		}
		return key, parsedValue
	}), nil)
	if err != nil {
		return err
	}
	return k.Unmarshal("", target)
}

func splitWithEscaping(s, separator, escape string) []string {
	s = strings.ReplaceAll(s, escape+separator, "\x00")
	tokens := strings.Split(s, separator)
	for i, token := range tokens {
		tokens[i] = strings.ReplaceAll(token, "\x00", separator)
	}
	return tokens
}

// DefaultConfig returns sensible, but not complete, default configuration values.
func DefaultConfig() Config {
	return Config{
		LogLevel:   zerolog.InfoLevel,
		StrictMode: true,
		Public: InterfaceConfig{
			Address: ":8080",
			URL:     "/",
		},
		Storage:     storage.DefaultConfig(),
		FHIR:        ehr.DefaultConfig(),
		SMARTOnFHIR: smartonfhir.DefaultConfig(),
		Display: DisplayConfig{
			Locale:   "zh-TW",
			Timezone: "Asia/Taipei",
		},
		Import: ImportConfig{
			MaxSize: 10 << 20,
		},
		Session: SessionConfig{
			Lifetime: 15 * time.Minute,
		},
		OpenTelemetry: otel.DefaultConfig(),
	}
}
