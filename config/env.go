package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"

	"github.com/wippyai/tickhost/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ApplyEnv overrides fields tagged with env from PREFIX_<TAG> variables.
// Empty variables are ignored.
func (c *Config) ApplyEnv(prefix string) error {
	return applyEnv(reflect.ValueOf(c).Elem(), prefix)
}

func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		ft := rt.Field(i)

		if field.Kind() == reflect.Struct && ft.Type != durationType {
			if err := applyEnv(field, prefix); err != nil {
				return err
			}
			continue
		}

		tag, ok := ft.Tag.Lookup("env")
		if !ok {
			continue
		}
		name := strings.ToUpper(tag)
		if prefix != "" {
			name = prefix + "_" + name
		}

		value := os.Getenv(name)
		if value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return errors.ParseFailed(name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	converted, err := cast.FromType(strings.TrimSpace(value), field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
