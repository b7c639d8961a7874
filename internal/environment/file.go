package environment

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Format selects the output encoding for Render.
type Format string

const (
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatTypeScript Format = "ts"
)

// Formats lists the values accepted by ParseFormat.
var Formats = []string{string(FormatJSON), string(FormatYAML), string(FormatTypeScript)}

// ParseFormat maps a user supplied name onto a Format.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "ts", "typescript":
		return FormatTypeScript, nil
	default:
		return "", fmt.Errorf("unsupported format %q", raw)
	}
}

// fileEnvironment mirrors Environment with optional fields so that a partial
// file only replaces what it names.
type fileEnvironment struct {
	Production   *bool     `yaml:"production"`
	APIServerURL string    `yaml:"apiServerUrl"`
	Auth0        fileAuth0 `yaml:"auth0"`
}

type fileAuth0 struct {
	URL         string `yaml:"url"`
	Audience    string `yaml:"audience"`
	ClientID    string `yaml:"clientId"`
	CallbackURL string `yaml:"callbackURL"`
}

// LoadFile overlays the YAML (or JSON) document at path onto base.
func LoadFile(path string, base Environment) (Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Environment{}, fmt.Errorf("read file: %w", err)
	}

	var doc fileEnvironment
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Environment{}, fmt.Errorf("parse environment file: %w", err)
	}

	return doc.apply(base), nil
}

func (f fileEnvironment) apply(env Environment) Environment {
	if f.Production != nil {
		env.Production = *f.Production
	}
	if f.APIServerURL != "" {
		env.APIServerURL = f.APIServerURL
	}
	if f.Auth0.URL != "" {
		env.Auth0.URL = f.Auth0.URL
	}
	if f.Auth0.Audience != "" {
		env.Auth0.Audience = f.Auth0.Audience
	}
	if f.Auth0.ClientID != "" {
		env.Auth0.ClientID = f.Auth0.ClientID
	}
	if f.Auth0.CallbackURL != "" {
		env.Auth0.CallbackURL = f.Auth0.CallbackURL
	}
	return env
}

var tsTemplate = template.Must(template.New("environment.ts").Funcs(template.FuncMap{
	"quote": quoteJS,
}).Parse(`export const environment = {
  production: {{ .Production }},
  apiServerUrl: {{ quote .APIServerURL }},
  auth0: {
    url: {{ quote .Auth0.URL }},
    audience: {{ quote .Auth0.Audience }},
    clientId: {{ quote .Auth0.ClientID }},
    callbackURL: {{ quote .Auth0.CallbackURL }},
  },
};
`))

func quoteJS(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// Render writes e in the requested format.
func (e Environment) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTypeScript:
		if err := tsTemplate.Execute(w, e); err != nil {
			return fmt.Errorf("render typescript: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
