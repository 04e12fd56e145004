package styles

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "STYLES_CONFIG_PATH"
	allowedPathEnv = "STYLES_ALLOWED_PATH"
)

//go:embed styles.yaml allowed_styles.txt
var embeddedFS embed.FS

type yamlConfig struct {
	Taxonomy          string              `yaml:"taxonomy"`
	Version           int                 `yaml:"version"`
	Sentinel          string              `yaml:"sentinel"`
	UniversalFallback string              `yaml:"universal_fallback"`
	DefaultBoxPrefix  string              `yaml:"default_box_prefix"`
	InvalidEntries    []string            `yaml:"invalid_entries"`
	ListBases         []string            `yaml:"list_bases"`
	Aliases           map[string]string   `yaml:"aliases"`
	FallbackChains    map[string][]string `yaml:"fallback_chains"`
	BoxChainTemplates map[string][]string `yaml:"box_chain_templates"`
	BoxPrefixes       []string            `yaml:"box_prefixes"`
	BoxTypes          map[string]string   `yaml:"box_types"`
	ZoneConstraints   map[string][]string `yaml:"zone_constraints"`
}

// Taxonomy is the loaded, immutable style configuration shared by every stage.
type Taxonomy struct {
	Version           int
	Sentinel          string
	UniversalFallback string
	Allowed           AllowedSet
	Normalizer        *Normalizer
	Chains            map[string][]string
	BoxTypes          map[string]string
	Constraints       ZoneConstraints
}

// LoadDefault reads the embedded configuration, honouring the env overrides.
func LoadDefault() (*Taxonomy, error) {
	cfgRaw, err := readSource(configPathEnv, "styles.yaml")
	if err != nil {
		return nil, fmt.Errorf("read styles config: %w", err)
	}
	allowedRaw, err := readSource(allowedPathEnv, "allowed_styles.txt")
	if err != nil {
		return nil, fmt.Errorf("read allowed styles: %w", err)
	}
	return Load(cfgRaw, allowedRaw)
}

// Load builds a Taxonomy from a YAML config and a flat vocabulary list.
func Load(configYAML, allowedList []byte) (*Taxonomy, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(configYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse styles config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	norm := newNormalizer(cfg.Aliases, cfg.ListBases, cfg.DefaultBoxPrefix)
	allowed, err := ParseAllowed(allowedList, norm, cfg.Sentinel, cfg.InvalidEntries)
	if err != nil {
		return nil, err
	}

	boxTypes := make(map[string]string, len(cfg.BoxTypes))
	for k, v := range cfg.BoxTypes {
		boxTypes[strings.ToLower(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}

	return &Taxonomy{
		Version:           cfg.Version,
		Sentinel:          cfg.Sentinel,
		UniversalFallback: cfg.UniversalFallback,
		Allowed:           allowed,
		Normalizer:        norm,
		Chains:            expandChains(cfg.FallbackChains, cfg.BoxChainTemplates, cfg.BoxPrefixes),
		BoxTypes:          boxTypes,
		Constraints:       newZoneConstraints(cfg.ZoneConstraints),
	}, nil
}

func readSource(env, name string) ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(env)); path != "" {
		return os.ReadFile(path)
	}
	return embeddedFS.ReadFile(name)
}

func validateConfig(cfg *yamlConfig) error {
	if strings.TrimSpace(cfg.Taxonomy) == "" {
		return errors.New("styles config: taxonomy name is required")
	}
	if strings.TrimSpace(cfg.Sentinel) == "" {
		return errors.New("styles config: sentinel is required")
	}
	if strings.TrimSpace(cfg.UniversalFallback) == "" {
		cfg.UniversalFallback = "TXT"
	}
	if strings.TrimSpace(cfg.DefaultBoxPrefix) == "" {
		cfg.DefaultBoxPrefix = "BX4"
	}
	for tag, chain := range cfg.FallbackChains {
		for _, c := range chain {
			if c == tag {
				return fmt.Errorf("styles config: fallback chain for %s contains itself", tag)
			}
		}
	}
	return nil
}

func expandChains(base, templates map[string][]string, prefixes []string) map[string][]string {
	out := make(map[string][]string, len(base)+len(templates)*len(prefixes))
	// Templates first so explicit chains win on collision.
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, p := range prefixes {
		for _, k := range keys {
			tag := strings.ReplaceAll(k, "{P}", p)
			chain := make([]string, 0, len(templates[k]))
			for _, c := range templates[k] {
				chain = append(chain, strings.ReplaceAll(c, "{P}", p))
			}
			out[tag] = chain
		}
	}
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// BoxPrefixFor maps a box kind ("clinical pearl") to its style prefix. Unknown kinds map to NBX.
func (t *Taxonomy) BoxPrefixFor(boxType string) string {
	if p, ok := t.BoxTypes[strings.ToLower(strings.TrimSpace(boxType))]; ok {
		return p
	}
	return "NBX"
}

// Normalize is shorthand for t.Normalizer.Normalize.
func (t *Taxonomy) Normalize(raw string, ctx Context) string {
	return t.Normalizer.Normalize(raw, ctx)
}

// Canonical normalizes then enforces membership.
func (t *Taxonomy) Canonical(raw string, ctx Context) (string, Step) {
	return t.EnforceMembership(t.Normalize(raw, ctx))
}

// IsAllowed reports whether the normalized tag is in the vocabulary.
func (t *Taxonomy) IsAllowed(tag string) bool {
	return t.Allowed.Has(t.Normalize(tag, Context{}))
}
