// Package utils contains small helpers shared across balance.
package utils

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a loosely typed set of attributes, as read from a JSON or YAML document.
type AttributeMap map[string]interface{}

// Has returns whether the attribute is present.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns the named string attribute or an empty string.
func (am AttributeMap) String(name string) string {
	x := am[name]
	if x == nil {
		return ""
	}

	s, ok := x.(string)
	if ok {
		return s
	}

	panic(fmt.Errorf("wanted a string for (%s) but got (%v) %T", name, x, x))
}

// Int returns the named int attribute or def when it is absent.
func (am AttributeMap) Int(name string, def int) int {
	x, has := am[name]
	if !has {
		return def
	}

	switch v := x.(type) {
	case int:
		return v
	case float64:
		// json numbers decode as float64
		return int(v)
	default:
		panic(fmt.Errorf("wanted an int for (%s) but got (%v) %T", name, x, x))
	}
}

// Float64 returns the named float attribute or def when it is absent.
func (am AttributeMap) Float64(name string, def float64) float64 {
	x, has := am[name]
	if !has {
		return def
	}

	switch v := x.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		panic(fmt.Errorf("wanted a float64 for (%s) but got (%v) %T", name, x, x))
	}
}

// TransformAttributeMap uses an attribute map to transform attributes to the prescribed format.
// Fields are matched by their json tags.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT != nil && toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	return out, nil
}
