package app

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// LoadConf reads a .yaml or .json file into out. Keys follow the mapstructure
// tags of out and durations may be written as strings like "30s". Fields
// missing from the file keep the value out already holds.
func LoadConf(path string, out any) error {
	var unmarshal func([]byte, any) error
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		unmarshal = yaml.Unmarshal
	case strings.HasSuffix(path, ".json"):
		unmarshal = json.Unmarshal
	}
	if unmarshal == nil {
		return errors.Errorf("app: load config %s no unmarshal func", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "app: load config %s read file", path)
	}
	var raw any
	if err = unmarshal(data, &raw); err != nil {
		return errors.Wrapf(err, "app: load config %s unmarshal", path)
	}
	if err = DecodeConf(raw, out); err != nil {
		return errors.Wrapf(err, "app: load config %s", path)
	}
	return nil
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	// report fields under their config key
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateConf checks the validate tags of out, which must point to a struct.
func ValidateConf(out any) error {
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "app: validate")
	}
	return nil
}

// DecodeConf decodes a generic map, as produced by yaml or json, into out and
// validates the result when out points to a struct.
func DecodeConf(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "app: new decoder")
	}
	if err = dec.Decode(in); err != nil {
		return errors.Wrap(err, "app: decode")
	}
	if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct {
		return ValidateConf(out)
	}
	return nil
}
