package traversal

import (
	"strconv"

	language "github.com/hanpama/graphcache/internal/language"
)

// NormalizeVariables keeps the variables the operation declares, filling in
// declared defaults for those the caller left out.
func NormalizeVariables(operation *language.OperationDefinition, variableValues map[string]any) map[string]any {
	normalized := make(map[string]any, len(operation.VariableDefinitions))
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		if val, ok := variableValues[name]; ok {
			normalized[name] = val
			continue
		}
		if varDef.DefaultValue != nil {
			if val, ok := valueFromAST(varDef.DefaultValue, nil); ok {
				normalized[name] = val
			}
		}
	}
	return normalized
}

// FieldArguments resolves a field's arguments against variables. Arguments
// bound to absent variables are dropped; nil is returned when none remain.
func FieldArguments(field *language.Field, variableValues map[string]any) map[string]any {
	if len(field.Arguments) == 0 {
		return nil
	}
	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		if val, ok := valueFromAST(arg.Value, variableValues); ok {
			args[arg.Name] = val
		}
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// valueFromAST converts an AST value to a Go value, substituting variables at
// any depth. The boolean is false when a referenced variable is undefined.
func valueFromAST(value *language.Value, variableValues map[string]any) (any, bool) {
	if value == nil {
		return nil, false
	}
	switch value.Kind {
	case language.Variable:
		v, ok := variableValues[value.Raw]
		return v, ok
	case language.IntValue:
		iv, err := strconv.Atoi(value.Raw)
		if err != nil {
			fv, _ := strconv.ParseFloat(value.Raw, 64)
			return fv, true
		}
		return iv, true
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv, true
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw, true
	case language.BooleanValue:
		return value.Raw == "true", true
	case language.NullValue:
		return nil, true
	case language.ListValue:
		out := make([]any, 0, len(value.Children))
		for _, c := range value.Children {
			v, ok := valueFromAST(c.Value, variableValues)
			if !ok {
				v = nil
			}
			out = append(out, v)
		}
		return out, true
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			if v, ok := valueFromAST(f.Value, variableValues); ok {
				m[f.Name] = v
			}
		}
		return m, true
	default:
		return nil, false
	}
}
