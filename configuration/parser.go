package configuration

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// overlayEnviron walks v (a pointer to a struct) and, for every field
// whose PREFIX_FIELD[_SUBFIELD...] environment variable is set,
// overwrites that field with the variable's value, YAML-unmarshaled
// into the field's type. Nested structs recurse with the field name
// appended to the prefix; map fields accept PREFIX_KEY variables for
// arbitrary keys.
func overlayEnviron(v interface{}, prefix string) error {
	env := make(map[string]string, len(os.Environ()))
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		env[parts[0]] = parts[1]
	}

	return overwriteFields(env, reflect.ValueOf(v), prefix)
}

func overwriteFields(env map[string]string, v reflect.Value, prefix string) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			sf := v.Type().Field(i)
			fieldPrefix := strings.ToUpper(prefix + "_" + sf.Name)
			if e, ok := env[fieldPrefix]; ok {
				fieldVal := reflect.New(sf.Type)
				if err := yaml.Unmarshal([]byte(e), fieldVal.Interface()); err != nil {
					return fmt.Errorf("env %s: %w", fieldPrefix, err)
				}
				v.Field(i).Set(reflect.Indirect(fieldVal))
			}
			if err := overwriteFields(env, v.Field(i), fieldPrefix); err != nil {
				return err
			}
		}
	case reflect.Map:
		return overwriteMap(env, v, prefix)
	}
	return nil
}

func overwriteMap(env map[string]string, m reflect.Value, prefix string) error {
	envMapRegexp, err := regexp.Compile(fmt.Sprintf("^%s_([A-Z0-9]+)$", strings.ToUpper(prefix)))
	if err != nil {
		return err
	}

	switch m.Type().Elem().Kind() {
	case reflect.Struct:
		for _, k := range m.MapKeys() {
			if err := overwriteFields(env, m.MapIndex(k), strings.ToUpper(fmt.Sprintf("%s_%s", prefix, k))); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, k := range m.MapKeys() {
			if err := overwriteMap(env, m.MapIndex(k), strings.ToUpper(fmt.Sprintf("%s_%s", prefix, k))); err != nil {
				return err
			}
		}
	}

	for key, val := range env {
		if submatches := envMapRegexp.FindStringSubmatch(key); submatches != nil {
			mapValue := reflect.New(m.Type().Elem())
			if err := yaml.Unmarshal([]byte(val), mapValue.Interface()); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(strings.ToLower(submatches[1])), reflect.Indirect(mapValue))
		}
	}
	return nil
}
