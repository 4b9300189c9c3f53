package web

import (
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/multinet/internal/core"
)

// OpenAPI document types. Only the subset the API uses is modeled.
type (
	openAPIDoc struct {
		OpenAPI string                          `yaml:"openapi"`
		Info    openAPIInfo                     `yaml:"info"`
		Paths   map[string]map[string]operation `yaml:"paths"`
	}

	openAPIInfo struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	}

	operation struct {
		Summary     string              `yaml:"summary"`
		Parameters  []parameter         `yaml:"parameters,omitempty"`
		RequestBody *requestBody        `yaml:"requestBody,omitempty"`
		Responses   map[string]response `yaml:"responses"`
	}

	parameter struct {
		Name     string `yaml:"name"`
		In       string `yaml:"in"`
		Required bool   `yaml:"required,omitempty"`
		Schema   schema `yaml:"schema"`
	}

	requestBody struct {
		Required bool                 `yaml:"required"`
		Content  map[string]mediaType `yaml:"content"`
	}

	mediaType struct {
		Schema schema `yaml:"schema"`
	}

	schema struct {
		Type   string   `yaml:"type"`
		Format string   `yaml:"format,omitempty"`
		Enum   []string `yaml:"enum,omitempty"`
	}

	response struct {
		Description string `yaml:"description"`
	}
)

const apiVersion = "1.0.0"

func pathParam(name string) parameter {
	return parameter{Name: name, In: "path", Required: true, Schema: schema{Type: "string"}}
}

func queryParam(name, typ string, enum ...string) parameter {
	return parameter{Name: name, In: "query", Schema: schema{Type: typ, Enum: enum}}
}

var errorResponses = map[string]response{
	"400": {Description: "validation failed or bad parameter"},
	"401": {Description: "missing api key"},
	"403": {Description: "permission denied"},
	"404": {Description: "workspace or table not found"},
	"409": {Description: "conflict with existing data"},
	"413": {Description: "body too large"},
	"503": {Description: "too many concurrent uploads"},
}

func withErrors(ok string) map[string]response {
	out := map[string]response{"200": {Description: ok}}
	for code, r := range errorResponses {
		out[code] = r
	}
	return out
}

// buildOpenAPI describes the API, with one upload path per registered format.
func buildOpenAPI(formats []core.FormatInfo) openAPIDoc {
	doc := openAPIDoc{
		OpenAPI: "3.0.3",
		Info:    openAPIInfo{Title: "multinet upload API", Version: apiVersion},
		Paths: map[string]map[string]operation{
			"/api/formats": {"get": {
				Summary:   "List upload formats",
				Responses: map[string]response{"200": {Description: "registered formats"}},
			}},
			"/api/workspaces": {"get": {
				Summary:   "List readable workspaces",
				Responses: map[string]response{"200": {Description: "workspace names"}, "401": {Description: "missing api key"}},
			}},
			"/api/workspaces/{workspace}": {
				"post": {
					Summary:    "Create a workspace",
					Parameters: []parameter{pathParam("workspace")},
					Responses:  map[string]response{"201": {Description: "created"}, "409": {Description: "workspace already exists"}},
				},
				"delete": {
					Summary:    "Delete a workspace and its tables",
					Parameters: []parameter{pathParam("workspace")},
					Responses:  withErrors("deleted"),
				},
			},
			"/api/workspaces/{workspace}/tables": {"get": {
				Summary:    "List tables",
				Parameters: []parameter{pathParam("workspace"), queryParam("type", "string", "all", "node", "edge")},
				Responses:  withErrors("table names and kinds"),
			}},
			"/api/workspaces/{workspace}/tables/{table}": {
				"get": {
					Summary: "Read a page of table rows",
					Parameters: []parameter{
						pathParam("workspace"), pathParam("table"),
						queryParam("offset", "integer"), queryParam("limit", "integer"),
					},
					Responses: withErrors("total count and rows"),
				},
				"delete": {
					Summary:    "Delete a table",
					Parameters: []parameter{pathParam("workspace"), pathParam("table")},
					Responses:  withErrors("deleted"),
				},
			},
			"/api/workspaces/{workspace}/tables/{table}/download": {"get": {
				Summary:    "Download a table as CSV",
				Parameters: []parameter{pathParam("workspace"), pathParam("table")},
				Responses:  withErrors("CSV file"),
			}},
		},
	}

	for _, f := range formats {
		params := []parameter{pathParam("workspace"), pathParam("table"), queryParam("dry_run", "boolean")}
		if f.Key == "csv" {
			params = append(params, queryParam("key", "string"))
		}
		doc.Paths["/api/"+f.Key+"/{workspace}/{table}"] = map[string]operation{"post": {
			Summary:    "Upload " + f.Label,
			Parameters: params,
			RequestBody: &requestBody{
				Required: true,
				Content: map[string]mediaType{
					f.ContentType:         {Schema: schema{Type: "string"}},
					"multipart/form-data": {Schema: schema{Type: "object"}},
				},
			},
			Responses: withErrors("per-table counts"),
		}}
	}
	return doc
}

// handleOpenAPI serves the API description as YAML.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	raw, err := yaml.Marshal(buildOpenAPI(s.service.Formats()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(raw)
}
