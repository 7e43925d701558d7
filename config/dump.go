package config

import (
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

var durationType = reflect.TypeFor[time.Duration]()

// Redacted returns a copy of c with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.Redis.Username != "" {
		out.Redis.Username = redacted
	}
	return &out
}

// MarshalYAML renders c with durations in their string form, as they are
// written in configuration files.
func (c *Config) MarshalYAML() (any, error) {
	return tree(c), nil
}

// Dump renders the redacted configuration as YAML.
func Dump(c *Config) ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// tree converts a configuration struct into nested maps keyed by yaml tag.
func tree(v any) map[string]any {
	m, _ := walk(reflect.ValueOf(v)).(map[string]any)
	return m
}

func walk(v reflect.Value) any {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}

	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = strings.ToLower(f.Name)
			}
			out[name] = walk(v.Field(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = walk(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = walk(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}
