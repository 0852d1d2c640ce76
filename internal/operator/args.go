package operator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// Args are the keyword arguments an operator is constructed from.
type Args map[string]any

// Clone returns a shallow copy so defaults never leak into the caller's map.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Decode maps the arguments onto a parameter struct using its yaml tags and
// validates the result. Keys the struct does not declare are ignored.
func (a Args) Decode(out any) error {
	var node yaml.Node
	if err := node.Encode(map[string]any(a)); err != nil {
		return execerrors.NewValidationError("arguments", "cannot encode arguments", err)
	}
	if err := node.Decode(out); err != nil {
		return execerrors.NewValidationError("arguments", err.Error(), err)
	}
	return convertValidationError(validatorInstance().Struct(out))
}

// ParseValue interprets a command-line string the way a YAML scalar would be
// read, so "60" becomes an int, "true" a bool and "[a, b]" a list. Lists and
// maps are only produced from flow syntax. A scalar is only converted when
// printing it back gives the same text, so "007" or "1.50" stay strings.
func ParseValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return raw
	}
	trimmed := strings.TrimSpace(raw)
	switch v := value.(type) {
	case map[string]any:
		if !strings.HasPrefix(trimmed, "{") {
			return raw
		}
	case []any:
		if !strings.HasPrefix(trimmed, "[") {
			return raw
		}
	case bool:
		if !strings.EqualFold(strconv.FormatBool(v), trimmed) {
			return raw
		}
	case int, int64, uint64:
		if fmt.Sprint(v) != trimmed {
			return raw
		}
	case float64:
		if strconv.FormatFloat(v, 'f', -1, 64) != trimmed {
			return raw
		}
	case string:
		return raw
	}
	return value
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance returns the shared validator, configured to report yaml
// field names.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		validateInst = v
	})
	return validateInst
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := ve.Field()
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return execerrors.NewValidationError(field, msg, err)
	}

	return execerrors.NewValidationError("arguments", err.Error(), err)
}
