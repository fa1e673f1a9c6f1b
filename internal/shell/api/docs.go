package api

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/artpar/fnhost/internal/core/credential"
	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/shell/api/openapi"
)

// newDocs registers the API resources with the OpenAPI generator.
func newDocs() *openapi.Generator {
	g := openapi.NewGenerator()

	g.RegisterResource(openapi.ResourceInfo{
		Name:      "functions",
		Model:     function.Function{},
		Input:     function.Config{},
		Constrain: constrainFunctionInput,
		QueryParams: []*openapi3.Parameter{
			openapi3.NewQueryParameter("search").WithSchema(openapi3.NewStringSchema()),
		},
		WriteParams: []*openapi3.Parameter{
			openapi3.NewQueryParameter("intent").WithSchema(
				openapi3.NewStringSchema().WithEnum("draft", "deploy")),
		},
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "credentials",
		Model:          credential.Credential{},
		Input:          credential.Input{},
		Constrain:      constrainCredentialInput,
		SupportsCreate: true,
		SupportsDelete: true,
	})

	return g
}

func constrainFunctionInput(props openapi3.Schemas) {
	if p := props["name"]; p != nil {
		p.Value.MinLength = function.MinNameLength
		p.Value.MaxLength = openapi3.Uint64Ptr(function.MaxNameLength)
		p.Value.Pattern = `^[a-zA-Z0-9_-]+$`
	}
	if p := props["description"]; p != nil {
		p.Value.MaxLength = openapi3.Uint64Ptr(function.MaxDescriptionLength)
	}
	if p := props["handler"]; p != nil {
		p.Value.Pattern = `^[a-zA-Z0-9_.-]+$`
		p.Value.Default = function.DefaultHandler
	}
	if p := props["timeout"]; p != nil {
		p.Value.Min = openapi3.Float64Ptr(function.MinTimeout)
		p.Value.Max = openapi3.Float64Ptr(function.MaxTimeout)
		p.Value.Default = function.DefaultTimeout
	}
	if p := props["memory"]; p != nil {
		p.Value.Min = openapi3.Float64Ptr(function.MinMemory)
		p.Value.Max = openapi3.Float64Ptr(function.MaxMemory)
		p.Value.MultipleOf = openapi3.Float64Ptr(function.MemoryStep)
		p.Value.Default = function.DefaultMemory
	}
	if p := props["runtime"]; p != nil {
		for _, rt := range function.SupportedRuntimes {
			p.Value.Enum = append(p.Value.Enum, string(rt))
		}
	}
	if p := props["sourceType"]; p != nil {
		p.Value.Enum = []any{string(function.SourceInline), string(function.SourceGitHub)}
		p.Value.Default = string(function.DefaultSourceType)
	}
}

func constrainCredentialInput(props openapi3.Schemas) {
	if p := props["type"]; p != nil {
		for _, t := range credential.Types {
			p.Value.Enum = append(p.Value.Enum, string(t))
		}
	}
	if p := props["name"]; p != nil {
		p.Value.MinLength = 3
		p.Value.MaxLength = openapi3.Uint64Ptr(100)
	}
}
