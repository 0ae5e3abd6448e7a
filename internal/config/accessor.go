package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"korabot/internal/domain"
)

// Paths use the yaml/json key names joined by dots, e.g. "ai.text.model".

// GetByPath returns the value of a single setting.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath assigns a setting. String values are parsed according to the
// field's type, so "7" sets an int and "true" a bool while "12345" stays a
// string for token and id fields.
func SetByPath(cfg *Config, path string, value any) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return &domain.ConfigError{Field: path, Reason: "is a section, set one of its keys"}
	}

	s, isString := value.(string)
	if !isString {
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || !rv.Type().ConvertibleTo(v.Type()) {
			return &domain.ConfigError{Field: path, Reason: fmt.Sprintf("cannot assign %T", value)}
		}
		v.Set(rv.Convert(v.Type()))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return &domain.ConfigError{Field: path, Reason: "expected true or false"}
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: path, Reason: "expected an integer"}
		}
		v.SetInt(n)
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return &domain.ConfigError{Field: path, Reason: "expected a number"}
		}
		v.SetFloat(f)
	default:
		return &domain.ConfigError{Field: path, Reason: "unsupported type " + v.Type().String()}
	}
	return nil
}

// ListPaths returns every leaf setting with its current value, including
// ones omitted from the saved file because they are empty.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	walk("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func walk(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := keyName(t.Field(i))
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			walk(name, f, out)
			continue
		}
		out[name] = f.Interface()
	}
}

func lookup(cfg *Config, path string) (reflect.Value, error) {
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, &domain.ConfigError{Field: path, Reason: "unknown setting"}
		}
		next, ok := field(v, key)
		if !ok {
			return reflect.Value{}, &domain.ConfigError{Field: path, Reason: "unknown setting"}
		}
		v = next
	}
	return v, nil
}

func field(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if keyName(t.Field(i)) == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func keyName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Sanitize returns a copy of the config with credentials masked for display.
func Sanitize(cfg *Config) *Config {
	c := *cfg

	for _, s := range []*string{
		&c.AI.Text.APIKey,
		&c.AI.Image.APIKey,
		&c.ImageHost.APIKey,
		&c.Channels.Telegram.Token,
		&c.Channels.WhatsApp.AccessToken,
		&c.Channels.WhatsApp.VerifyToken,
		&c.Channels.WhatsApp.AppSecret,
	} {
		*s = maskString(*s)
	}
	// The DSN embeds a password anywhere in the string.
	if c.History.DSN != "" {
		c.History.DSN = "***"
	}
	return &c
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
