// Package config resolves focusrelay settings through glazed sections. Values
// come from command-line flags, FOCUSRELAY_* environment variables, a YAML
// config file and the section defaults, in that order of precedence.
package config

import (
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/redisstream"
	"github.com/go-go-golems/focusrelay/pkg/server"
	"github.com/go-go-golems/focusrelay/pkg/strategy"
)

// EnvPrefix prefixes every environment variable, e.g. FOCUSRELAY_REDIS_ADDR.
const EnvPrefix = "FOCUSRELAY"

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

const (
	StoreSlug  = "store"
	SearchSlug = "search"
)

type StoreSettings struct {
	Driver string `glazed:"store-driver"`
	Path   string `glazed:"store-path"`
}

type SearchSettings struct {
	SearxNGURL     string `glazed:"searxng-url"`
	MaxResults     int    `glazed:"search-max-results"`
	TimeoutSeconds int    `glazed:"search-timeout-seconds"`
	Language       string `glazed:"search-language"`
}

func (s SearchSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type Settings struct {
	Server server.Settings
	Store  StoreSettings
	Redis  redisstream.Settings
	OneAPI providers.Settings
	Search SearchSettings
}

func NewStoreSection() (schema.Section, error) {
	return schema.NewSection(
		StoreSlug,
		"Chat history store",
		schema.WithFields(
			fields.New("store-driver", fields.TypeChoice,
				fields.WithChoices(StoreSQLite, StoreMemory),
				fields.WithDefault(StoreSQLite),
				fields.WithHelp("Chat store driver")),
			fields.New("store-path", fields.TypeString,
				fields.WithDefault("focusrelay.db"),
				fields.WithHelp("SQLite database file")),
		),
	)
}

func NewSearchSection() (schema.Section, error) {
	return schema.NewSection(
		SearchSlug,
		"SearxNG metasearch",
		schema.WithFields(
			fields.New("searxng-url", fields.TypeString,
				fields.WithDefault("http://localhost:8080"),
				fields.WithHelp("Base URL of the SearxNG instance")),
			fields.New("search-max-results", fields.TypeInteger,
				fields.WithDefault(strategy.DefaultMaxResults),
				fields.WithHelp("Search hits kept as sources per answer")),
			fields.New("search-timeout-seconds", fields.TypeInteger,
				fields.WithDefault(20),
				fields.WithHelp("Timeout of one SearxNG request")),
			fields.New("search-language", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("SearxNG language code, e.g. en or de; instance default when empty")),
		),
	)
}

// Sections lists every section focusrelay commands resolve.
func Sections() ([]schema.Section, error) {
	ctors := []func() (schema.Section, error){
		server.NewSection,
		NewStoreSection,
		redisstream.NewSection,
		providers.NewSection,
		NewSearchSection,
	}
	ret := make([]schema.Section, 0, len(ctors))
	for _, ctor := range ctors {
		s, err := ctor()
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

// Decode fills Settings from resolved values.
func Decode(parsed *values.Values) (Settings, error) {
	var s Settings
	targets := []struct {
		slug string
		dst  interface{}
	}{
		{server.SectionSlug, &s.Server},
		{StoreSlug, &s.Store},
		{redisstream.SectionSlug, &s.Redis},
		{providers.SectionSlug, &s.OneAPI},
		{SearchSlug, &s.Search},
	}
	for _, t := range targets {
		if err := parsed.DecodeSectionInto(t.slug, t.dst); err != nil {
			return s, errors.Wrapf(err, "decode %s settings", t.slug)
		}
	}
	return s, nil
}

// Middlewares returns the resolution chain, highest precedence first: the
// given command-line sources, the environment, the YAML file at path
// (skipped when empty) and the section defaults.
func Middlewares(path string, cmdline ...sources.Middleware) ([]sources.Middleware, error) {
	mws := append([]sources.Middleware{}, cmdline...)
	mws = append(mws, sources.FromEnv(EnvPrefix, fields.WithSource("env")))
	if path != "" {
		m, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		mws = append(mws, sources.FromMap(m, fields.WithSource("config")))
	}
	return append(mws, sources.FromDefaults(fields.WithSource(fields.SourceDefaults))), nil
}

// Parse runs mws over the focusrelay sections.
func Parse(mws ...sources.Middleware) (*values.Values, error) {
	sections, err := Sections()
	if err != nil {
		return nil, err
	}
	parsed := values.New()
	if err := sources.Execute(schema.NewSchema(schema.WithSections(sections...)), parsed, mws...); err != nil {
		return nil, errors.Wrap(err, "resolve settings")
	}
	return parsed, nil
}

// Resolve parses and decodes in one step.
func Resolve(mws ...sources.Middleware) (Settings, error) {
	parsed, err := Parse(mws...)
	if err != nil {
		return Settings{}, err
	}
	return Decode(parsed)
}

// Defaults resolves the section defaults only.
func Defaults() (Settings, error) {
	return Resolve(sources.FromDefaults(fields.WithSource(fields.SourceDefaults)))
}

// Load resolves settings without a command line: the .env file at envFile is
// exported first, then the environment, the config file at path and the
// defaults apply.
func Load(path, envFile string) (Settings, error) {
	if err := LoadDotEnv(envFile); err != nil {
		return Settings{}, err
	}
	mws, err := Middlewares(path)
	if err != nil {
		return Settings{}, err
	}
	return Resolve(mws...)
}

// ReadFile parses a YAML config file keyed by section slug, then field name:
//
//	redis:
//	  redis-enabled: true
//	  redis-addr: redis:6379
func ReadFile(path string) (map[string]map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	m := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	known := map[string]bool{
		server.SectionSlug:      true,
		StoreSlug:               true,
		redisstream.SectionSlug: true,
		providers.SectionSlug:   true,
		SearchSlug:              true,
	}
	for slug := range m {
		if !known[slug] {
			return nil, errors.Errorf("config %s: unknown section %q", path, slug)
		}
	}
	return m, nil
}

// LoadDotEnv exports the variables of a .env file that are not already set.
// An empty path or a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Server.Addr) == "" {
		return errors.New("addr is required")
	}
	switch s.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(s.Store.Path) == "" {
			return errors.New("store-path is required for the sqlite driver")
		}
	default:
		return errors.Errorf("unknown store driver %q", s.Store.Driver)
	}
	if s.Redis.Enabled && strings.TrimSpace(s.Redis.Addr) == "" {
		return errors.New("redis-addr is required when redis is enabled")
	}
	if s.Search.MaxResults <= 0 {
		return errors.New("search-max-results must be positive")
	}
	if s.OneAPI.Temperature < 0 || s.OneAPI.Temperature > 2 {
		return errors.Errorf("oneapi-temperature %v out of range [0, 2]", s.OneAPI.Temperature)
	}
	return nil
}
