// Package config provides HCL configuration parsing for the project
// document (rproject.hcl), using the HashiCorp HCL v2 library.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Parser wraps HCL parsing functionality and provides a reusable parser instance.
type Parser struct {
	parser *hclparse.Parser
}

// NewParser creates a new HCL parser instance.
func NewParser() *Parser {
	return &Parser{
		parser: hclparse.NewParser(),
	}
}

// ParseFile parses an HCL file and returns the parsed file and any diagnostics.
func (p *Parser) ParseFile(filename string) (*hcl.File, hcl.Diagnostics) {
	return p.parser.ParseHCLFile(filename)
}

// DecodeBody decodes an HCL body into the target struct using gohcl.
func DecodeBody(body hcl.Body, ctx *hcl.EvalContext, target interface{}) hcl.Diagnostics {
	return gohcl.DecodeBody(body, ctx, target)
}

// NewEvalContext creates a bare HCL evaluation context exposing only env(),
// used while decoding variable { } blocks themselves (before var.NAME is
// available).
func NewEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunction(),
		},
	}
}

// NewProjectEvalContext creates the evaluation context used for the rest
// of rproject.hcl once its variable blocks have been resolved: env() and
// file() (paths resolved relative to the project root), plus a var object
// exposing each resolved variable by name.
func NewProjectEvalContext(projectRoot string, resolvedVars map[string]string) *hcl.EvalContext {
	ctyVars := make(map[string]cty.Value)
	for name, value := range resolvedVars {
		ctyVars[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env":  envFunction(),
			"file": fileFunction(projectRoot),
		},
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(ctyVars),
		},
	}
}

// variableBlockSchema defines the HCL schema for extracting variable blocks.
var variableBlockSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
	},
}

// extractAndResolveProjectVariables extracts variable blocks from an HCL
// body and resolves their values from environment variables and defaults,
// returning the remaining body with the variable blocks removed.
func extractAndResolveProjectVariables(body hcl.Body) ([]ProjectVariableBlock, map[string]string, hcl.Body, error) {
	content, remain, diags := body.PartialContent(variableBlockSchema)
	if diags.HasErrors() {
		return nil, nil, nil, fmt.Errorf("failed to extract variable blocks: %s", diags.Error())
	}

	var variables []ProjectVariableBlock
	resolvedVars := make(map[string]string)
	basicCtx := NewEvalContext()

	for _, block := range content.Blocks {
		if block.Type != "variable" {
			continue
		}

		var varBlock ProjectVariableBlock
		varBlock.Name = block.Labels[0]

		diags := gohcl.DecodeBody(block.Body, basicCtx, &varBlock)
		if diags.HasErrors() {
			return nil, nil, nil, fmt.Errorf("failed to decode variable %q: %s", varBlock.Name, diags.Error())
		}

		value, err := resolveProjectVariable(&varBlock)
		if err != nil {
			return nil, nil, nil, err
		}

		variables = append(variables, varBlock)
		resolvedVars[varBlock.Name] = value
	}

	return variables, resolvedVars, remain, nil
}

// resolveProjectVariable resolves the value for a project variable.
// Resolution order: env var (if specified) -> default -> error if required -> empty string.
func resolveProjectVariable(v *ProjectVariableBlock) (string, error) {
	if v.Env != "" {
		if val, ok := os.LookupEnv(v.Env); ok {
			return val, nil
		}
	}
	if v.Default != "" {
		return v.Default, nil
	}
	if v.Required {
		return "", fmt.Errorf("required variable %q has no value (set via env var %q or default)", v.Name, v.Env)
	}
	return "", nil
}

// fileFunction returns an HCL function that reads file contents relative
// to baseDir. Usage in HCL: file("relative/path/to/file").
func fileFunction(baseDir string) function.Function {
	return function.New(&function.Spec{
		Description: "Reads the contents of a file relative to the project root",
		Params: []function.Parameter{
			{
				Name:        "path",
				Type:        cty.String,
				Description: "The relative path to the file to read",
			},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			relPath := args[0].AsString()
			fullPath := filepath.Join(baseDir, relPath)

			content, err := os.ReadFile(fullPath)
			if err != nil {
				return cty.StringVal(""), fmt.Errorf("failed to read file %s: %w", relPath, err)
			}

			return cty.StringVal(string(content)), nil
		},
	})
}

// envFunction returns an HCL function that reads environment variables.
// Usage in HCL: env("VAR_NAME") or env("VAR_NAME", "default_value").
func envFunction() function.Function {
	return function.New(&function.Spec{
		Description: "Reads an environment variable, with an optional default value",
		Params: []function.Parameter{
			{
				Name:        "name",
				Type:        cty.String,
				Description: "The name of the environment variable to read",
			},
		},
		VarParam: &function.Parameter{
			Name:        "default",
			Type:        cty.String,
			Description: "Optional default value if the environment variable is not set",
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			envName := args[0].AsString()
			value := os.Getenv(envName)

			if value == "" && len(args) > 1 {
				value = args[1].AsString()
			}

			return cty.StringVal(value), nil
		},
	})
}

// fmtDiagErr adapts hcl.Diagnostics to a single error, preserving file
// position information from the first diagnostic when available.
func fmtDiagErr(diags hcl.Diagnostics) error {
	if !diags.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s", diags.Error())
}
