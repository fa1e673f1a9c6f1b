// Package openapi builds the OpenAPI 3.0 document for the HTTP API by
// reflecting on the registered resource models.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered resources.
type Generator struct {
	title       string
	version     string
	description string
	basePath    string
	resources   []ResourceInfo
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// ResourceInfo describes one REST collection.
type ResourceInfo struct {
	Name           string // Collection name, e.g. "functions"
	Model          any    // Record struct used for the response schema
	Input          any    // Request body struct; Model is used when nil
	Constrain      func(props openapi3.Schemas)
	QueryParams    []*openapi3.Parameter // List parameters beyond page and limit
	WriteParams    []*openapi3.Parameter // Parameters of create and update
	SupportsCreate bool
	SupportsUpdate bool
	SupportsDelete bool
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithBasePath sets the prefix of every collection path.
func WithBasePath(path string) Option {
	return func(g *Generator) {
		g.basePath = strings.TrimSuffix(path, "/")
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "fnhost API",
		version:     "1.0.0",
		description: "Function configuration storage and submission API",
		basePath:    "/api",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterResource adds a resource to the generator.
func (g *Generator) RegisterResource(info ResourceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, info)
	g.cachedSpec = nil
}

// Generate produces the OpenAPI document. The result is cached until another
// resource is registered.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	g.addCommonSchemas(spec)
	for _, res := range g.resources {
		g.addResourceToSpec(spec, res)
	}

	g.cachedSpec = spec
	return spec
}

// Handler serves the document as JSON.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "failed to encode OpenAPI document", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schemas
// =============================================================================

func ref(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
}

func typed(t string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{t}}
}

func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	spec.Components.Schemas["Pagination"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"page":       {Value: typed("integer")},
				"limit":      {Value: typed("integer")},
				"total":      {Value: typed("integer")},
				"totalPages": {Value: typed("integer")},
			},
		},
	}

	spec.Components.Schemas["Error"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"message": {Value: typed("string")},
				"code":    {Value: typed("string")},
				"errors": {Value: &openapi3.Schema{
					Type:                 &openapi3.Types{"object"},
					AdditionalProperties: openapi3.AdditionalProperties{Schema: &openapi3.SchemaRef{Value: typed("string")}},
				}},
			},
			Required: []string{"message", "code"},
		},
	}
}

func (g *Generator) addResourceToSpec(spec *openapi3.T, res ResourceInfo) {
	basePath := g.basePath + "/" + res.Name
	schemaName := capitalize(singularize(res.Name))

	model := extractSchema(res.Model)
	spec.Components.Schemas[schemaName] = model

	input := model
	if res.Input != nil {
		input = extractSchema(res.Input)
	}
	if res.Constrain != nil {
		res.Constrain(input.Value.Properties)
	}
	spec.Components.Schemas[schemaName+"Input"] = input

	spec.Components.Schemas[schemaName+"List"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"data": {Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: ref(schemaName),
				}},
				"pagination": ref("Pagination"),
			},
		},
	}

	collection := &openapi3.PathItem{
		Get: g.operation("list"+capitalize(res.Name), "List "+res.Name, res, schemaName+"List", 200),
	}
	collection.Get.Parameters = listParameters(res.QueryParams)
	if res.SupportsCreate {
		collection.Post = g.operation("create"+schemaName, "Create a "+singularize(res.Name), res, schemaName, 201)
		collection.Post.RequestBody = requestBody(schemaName + "Input")
		collection.Post.Parameters = parameters(res.WriteParams)
		addErrorResponses(collection.Post, 400, 422)
	}
	spec.Paths.Set(basePath, collection)

	item := &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			{Value: openapi3.NewPathParameter("id").WithSchema(typed("string"))},
		},
		Get: g.operation("get"+schemaName, "Get a "+singularize(res.Name), res, schemaName, 200),
	}
	addErrorResponses(item.Get, 404)
	if res.SupportsUpdate {
		item.Put = g.operation("update"+schemaName, "Update a "+singularize(res.Name), res, schemaName, 200)
		item.Put.RequestBody = requestBody(schemaName + "Input")
		item.Put.Parameters = parameters(res.WriteParams)
		addErrorResponses(item.Put, 400, 404, 422)
	}
	if res.SupportsDelete {
		item.Delete = &openapi3.Operation{
			OperationID: "delete" + schemaName,
			Summary:     "Delete a " + singularize(res.Name),
			Tags:        []string{capitalize(res.Name)},
		}
		item.Delete.AddResponse(204, openapi3.NewResponse().WithDescription("Deleted"))
		addErrorResponses(item.Delete, 404)
	}
	spec.Paths.Set(basePath+"/{id}", item)
}

// extractSchema builds an object schema from a struct's JSON fields.
// Embedded structs are flattened the way encoding/json flattens them.
func extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}
	addFields(schema, t)
	return &openapi3.SchemaRef{Value: schema}
}

func addFields(schema *openapi3.Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		if field.Anonymous && jsonTag == "" && field.Type.Kind() == reflect.Struct {
			addFields(schema, field.Type)
			continue
		}
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			if parts := strings.Split(jsonTag, ","); parts[0] != "" {
				name = parts[0]
			}
		}

		if propSchema := goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
	}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: typed("string")}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: typed("number")}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: typed("boolean")}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return extractSchema(reflect.New(t).Interface())

	default:
		return &openapi3.SchemaRef{Value: typed("object")}
	}
}

// =============================================================================
// Operations
// =============================================================================

func (g *Generator) operation(id, summary string, res ResourceInfo, schema string, status int) *openapi3.Operation {
	op := &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Tags:        []string{capitalize(res.Name)},
	}
	op.AddResponse(status, openapi3.NewResponse().
		WithDescription(summary).
		WithContent(openapi3.NewContentWithJSONSchemaRef(ref(schema))))
	return op
}

func requestBody(schema string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithJSONSchemaRef(ref(schema))),
	}
}

func addErrorResponses(op *openapi3.Operation, statuses ...int) {
	for _, status := range statuses {
		op.AddResponse(status, openapi3.NewResponse().
			WithDescription(http.StatusText(status)).
			WithContent(openapi3.NewContentWithJSONSchemaRef(ref("Error"))))
	}
}

func listParameters(extra []*openapi3.Parameter) openapi3.Parameters {
	params := openapi3.Parameters{
		{Value: openapi3.NewQueryParameter("page").WithSchema(typed("integer"))},
		{Value: openapi3.NewQueryParameter("limit").WithSchema(typed("integer"))},
	}
	return append(params, parameters(extra)...)
}

func parameters(ps []*openapi3.Parameter) openapi3.Parameters {
	var params openapi3.Parameters
	for _, p := range ps {
		params = append(params, &openapi3.ParameterRef{Value: p})
	}
	return params
}

// =============================================================================
// Helpers
// =============================================================================

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize removes a trailing 's'.
func singularize(s string) string {
	return strings.TrimSuffix(s, "s")
}
