// Package taskfile loads single-task definitions for the generic run command
// from YAML or HCL files.
package taskfile

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// Definition is one operator invocation.
type Definition struct {
	Operator   string        `yaml:"operator" validate:"required"`
	TaskID     string        `yaml:"task_id"`
	PreExecute bool          `yaml:"pre_execute"`
	Args       operator.Args `yaml:"args"`
}

// Arguments returns a copy of the args with task_id folded in when the
// definition sets one.
func (d *Definition) Arguments() operator.Args {
	args := d.Args.Clone()
	if d.TaskID != "" {
		args["task_id"] = d.TaskID
	}
	return args
}

// hclFile is the top-level body of an HCL task file.
type hclFile struct {
	Operator   string    `hcl:"operator"`
	TaskID     *string   `hcl:"task_id,optional"`
	PreExecute *bool     `hcl:"pre_execute,optional"`
	Args       cty.Value `hcl:"args,optional"`
}

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads path and decodes it according to its extension.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, execerrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes data, choosing the format from the file name's extension.
func Parse(path string, data []byte) (*Definition, error) {
	var (
		def *Definition
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		def, err = parseYAML(path, data)
	case ".hcl":
		def, err = parseHCL(path, data)
	default:
		return nil, execerrors.NewParseError(path, 0, fmt.Errorf("unsupported task file extension %q (want .yaml, .yml or .hcl)", ext))
	}
	if err != nil {
		return nil, err
	}
	if err := validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func parseYAML(path string, data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, execerrors.NewParseError(path, extractLine(err), err)
	}
	if def.Args == nil {
		def.Args = operator.Args{}
	}
	return &def, nil
}

func parseHCL(path string, data []byte) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, execerrors.NewParseError(path, diagLine(diags), diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, execerrors.NewParseError(path, diagLine(diags), diags)
	}

	def := &Definition{Operator: raw.Operator, Args: operator.Args{}}
	if raw.TaskID != nil {
		def.TaskID = *raw.TaskID
	}
	if raw.PreExecute != nil {
		def.PreExecute = *raw.PreExecute
	}
	if !raw.Args.IsNull() {
		ty := raw.Args.Type()
		if !ty.IsObjectType() && !ty.IsMapType() {
			return nil, execerrors.NewParseError(path, 0, fmt.Errorf("args must be an object, got %s", ty.FriendlyName()))
		}
		native, err := ctyToNative(raw.Args)
		if err != nil {
			return nil, execerrors.NewParseError(path, 0, err)
		}
		def.Args = operator.Args(native.(map[string]any))
	}
	return def, nil
}

// ctyToNative converts a cty value to plain Go values. Whole numbers become
// int64 so they decode into integer parameters.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

var definitionValidator = validator.New()

func validate(def *Definition) error {
	if err := definitionValidator.Struct(def); err != nil {
		return execerrors.NewValidationError("operator", "task file must name an operator", err)
	}
	return nil
}

func extractLine(err error) int {
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	line, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0
	}
	return line
}

func diagLine(diags hcl.Diagnostics) int {
	for _, diag := range diags {
		if diag.Subject != nil {
			return diag.Subject.Start.Line
		}
	}
	return 0
}
