package workflow

import "regexp"

// referencePattern matches "${...}" expressions, grounded on the source's
// PathResolver.resolve_variables regex.
var referencePattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Substitute expands "${...}" references in template against bindings,
// single-pass, left-to-right, non-recursive. A reference that does not
// resolve is left untouched in the output, matching the source's forgiving
// behaviour and allowing shell-side "$var" to coexist in the same command.
func Substitute(template string, bindings Value) string {
	if template == "" {
		return template
	}
	return referencePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := match[2 : len(match)-1]
		value, ok := bindings.Get(path)
		if !ok {
			return match
		}
		return value.String()
	})
}

// Bindings composes the five scopes a step runner substitutes against
// (§4.2, §4.4): config, inputs, resources, steps (earlier steps' outputs)
// and run_dir.
func Bindings(config, inputs, resources map[string]Value, steps map[string]Value, runDir string) Value {
	root := map[string]Value{
		"config":    MapValue(config),
		"inputs":    MapValue(inputs),
		"resources": MapValue(resources),
		"steps":     MapValue(steps),
		"run_dir":   Str(runDir),
	}
	return MapValue(root)
}
