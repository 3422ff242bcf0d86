package configuration

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Version is a dotted Major.Minor pair. A schema's major component changes
// when its struct shape changes; minor bumps are additive only.
type Version string

// MajorMinorVersion builds a Version from its components.
func MajorMinorVersion(major, minor uint) Version {
	return Version(fmt.Sprintf("%d.%d", major, minor))
}

func (v Version) parts() (major, minor uint, err error) {
	split := strings.SplitN(string(v), ".", 2)
	if len(split) != 2 {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	maj, err := strconv.ParseUint(split[0], 10, 0)
	if err != nil {
		return 0, 0, err
	}
	min, err := strconv.ParseUint(split[1], 10, 0)
	if err != nil {
		return 0, 0, err
	}
	return uint(maj), uint(min), nil
}

// Major returns the leading version component, or 0 if v is malformed.
func (v Version) Major() uint {
	major, _, _ := v.parts()
	return major
}

// Minor returns the trailing version component, or 0 if v is malformed.
func (v Version) Minor() uint {
	_, minor, _ := v.parts()
	return minor
}

// VersionedParseInfo tells the Parser how to decode one schema version: the
// concrete struct to unmarshal into, and how to fold that struct into the
// caller's current-version type.
type VersionedParseInfo struct {
	Version        Version
	ParseAs        reflect.Type
	ConversionFunc func(interface{}) (interface{}, error)
}

// Parser decodes a YAML document into one of several registered schema
// versions and layers environment-variable overrides on top, so a config
// struct never needs its own flag-parsing or env-lookup code.
type Parser struct {
	envPrefix string
	byVersion map[Version]VersionedParseInfo
	env       map[string]string
}

// NewParser builds a Parser that recognizes the given schema versions and
// overlays environment variables under envPrefix.
func NewParser(envPrefix string, versions []VersionedParseInfo) *Parser {
	p := &Parser{
		envPrefix: envPrefix,
		byVersion: make(map[Version]VersionedParseInfo, len(versions)),
		env:       make(map[string]string),
	}
	for _, vi := range versions {
		p.byVersion[vi.Version] = vi
	}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			p.env[name] = value
		}
	}
	return p
}

// Parse decodes in against the version it declares, applies environment
// overrides, runs the version's ConversionFunc, and stores the result in v.
//
// A field v.Foo.Bar may be overridden by setting PREFIX_FOO_BAR in the
// environment; a map field is overridden per-key by PREFIX_FOO_KEY.
func (p *Parser) Parse(in []byte, v interface{}) error {
	var probe struct{ Version Version }
	if err := yaml.Unmarshal(in, &probe); err != nil {
		return fmt.Errorf("probe configuration version: %w", err)
	}

	info, ok := p.byVersion[probe.Version]
	if !ok {
		return fmt.Errorf("unsupported configuration version %q", probe.Version)
	}

	decoded := reflect.New(info.ParseAs)
	if err := yaml.Unmarshal(in, decoded.Interface()); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	if err := p.applyEnvOverrides(decoded, p.envPrefix); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}

	converted, err := info.ConversionFunc(decoded.Interface())
	if err != nil {
		return fmt.Errorf("convert configuration: %w", err)
	}
	reflect.ValueOf(v).Elem().Set(reflect.Indirect(reflect.ValueOf(converted)))
	return nil
}

// applyEnvOverrides walks a struct's fields (recursing into nested structs
// and maps), replacing any field whose PREFIX_FIELD env var is set.
func (p *Parser) applyEnvOverrides(v reflect.Value, prefix string) error {
	for v.Kind() == reflect.Ptr {
		v = reflect.Indirect(v)
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			fieldPrefix := strings.ToUpper(prefix + "_" + field.Name)
			if raw, ok := p.env[fieldPrefix]; ok {
				overridden := reflect.New(field.Type)
				if err := yaml.Unmarshal([]byte(raw), overridden.Interface()); err != nil {
					return fmt.Errorf("%s: %w", fieldPrefix, err)
				}
				v.Field(i).Set(reflect.Indirect(overridden))
			}
			if err := p.applyEnvOverrides(v.Field(i), fieldPrefix); err != nil {
				return err
			}
		}
	case reflect.Map:
		return p.applyEnvOverridesToMap(v, prefix)
	}
	return nil
}

func (p *Parser) applyEnvOverridesToMap(m reflect.Value, prefix string) error {
	switch m.Type().Elem().Kind() {
	case reflect.Struct:
		// A map value fetched via MapIndex isn't addressable, so
		// applyEnvOverrides can't Set its fields in place: copy it out to
		// an addressable struct, overlay onto the copy, then write back.
		for _, key := range m.MapKeys() {
			keyPrefix := strings.ToUpper(fmt.Sprintf("%s_%s", prefix, key))
			entry := reflect.New(m.Type().Elem()).Elem()
			entry.Set(m.MapIndex(key))
			if err := p.applyEnvOverrides(entry, keyPrefix); err != nil {
				return err
			}
			m.SetMapIndex(key, entry)
		}
		return p.overrideMapEntries(m, prefix)
	case reflect.Map:
		for _, key := range m.MapKeys() {
			keyPrefix := strings.ToUpper(fmt.Sprintf("%s_%s", prefix, key))
			if err := p.applyEnvOverridesToMap(m.MapIndex(key), keyPrefix); err != nil {
				return err
			}
		}
		return nil
	default:
		return p.overrideMapEntries(m, prefix)
	}
}

// overrideMapEntries scans the environment for PREFIX_KEY entries and sets
// or replaces m[key] with the decoded value, for map element types that
// aren't themselves recursed into (scalars, or structs already walked by
// applyEnvOverrides above).
func (p *Parser) overrideMapEntries(m reflect.Value, prefix string) error {
	pattern, err := regexp.Compile(fmt.Sprintf("^%s_([A-Z0-9]+)$", strings.ToUpper(prefix)))
	if err != nil {
		return err
	}
	for name, raw := range p.env {
		submatch := pattern.FindStringSubmatch(name)
		if submatch == nil {
			continue
		}
		value := reflect.New(m.Type().Elem())
		if err := yaml.Unmarshal([]byte(raw), value.Interface()); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		m.SetMapIndex(reflect.ValueOf(strings.ToLower(submatch[1])), reflect.Indirect(value))
	}
	return nil
}
