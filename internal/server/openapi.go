//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
	"github.com/pgEdge/pgedge-ask-server/internal/pipeline"
)

const openAPIPath = "/api/openapi.json"

// OpenAPISpec is an OpenAPI v3 document, limited to the parts this API
// uses.
type OpenAPISpec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       OpenAPIInfo            `json:"info"`
	Servers    []OpenAPIServer        `json:"servers"`
	Paths      map[string]OpenAPIPath `json:"paths"`
	Components OpenAPIComponents      `json:"components"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type OpenAPIServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type OpenAPIPath struct {
	Get  *OpenAPIOperation `json:"get,omitempty"`
	Post *OpenAPIOperation `json:"post,omitempty"`
}

type OpenAPIOperation struct {
	Summary     string                     `json:"summary"`
	Description string                     `json:"description,omitempty"`
	OperationID string                     `json:"operationId"`
	Tags        []string                   `json:"tags,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters,omitempty"`
	RequestBody *OpenAPIRequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]OpenAPIResponse `json:"responses"`
}

type OpenAPIParameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Schema      OpenAPISchema `json:"schema"`
}

type OpenAPIRequestBody struct {
	Required bool                        `json:"required"`
	Content  map[string]OpenAPIMediaType `json:"content"`
}

type OpenAPIResponse struct {
	Description string                      `json:"description"`
	Content     map[string]OpenAPIMediaType `json:"content,omitempty"`
}

type OpenAPIMediaType struct {
	Schema OpenAPISchema `json:"schema"`
}

type OpenAPISchema struct {
	Type        string                   `json:"type,omitempty"`
	Format      string                   `json:"format,omitempty"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]OpenAPISchema `json:"properties,omitempty"`
	Items       *OpenAPISchema           `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Ref         string                   `json:"$ref,omitempty"`
}

type OpenAPIComponents struct {
	Schemas map[string]OpenAPISchema `json:"schemas"`
}

// handleOpenAPI handles the GET /api/openapi.json endpoint.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, BuildOpenAPISpec())
}

// components lists the wire types published under #/components/schemas,
// keyed by the Go type they are generated from.
var components = map[reflect.Type]string{
	reflect.TypeFor[HealthResponse](): "HealthResponse",
	reflect.TypeFor[AskRequest]():     "AskRequest",
	reflect.TypeFor[AgentRequest]():   "AgentRequest",
	reflect.TypeFor[tools.Plugin]():   "Plugin",
	reflect.TypeFor[pipeline.Event](): "StreamEvent",
	reflect.TypeFor[UploadResponse](): "UploadResponse",
	reflect.TypeFor[ErrorResponse]():  "ErrorResponse",
	reflect.TypeFor[ErrorDetail]():    "ErrorDetail",
}

// requests are the components clients send. Their required fields come
// from validation tags; every other component requires the fields it
// never omits.
var requests = map[string]bool{"AskRequest": true, "AgentRequest": true, "Plugin": true}

// fieldDocs describes properties, keyed by "Component.json_name" of the
// type that declares the field.
var fieldDocs = map[string]string{
	"HealthResponse.status":      "Health status",
	"AskRequest.question":        "The question to answer",
	"AskRequest.model":           "Model selector; the configured default when empty",
	"AskRequest.use_rag":         "Ground the answer in the selected files",
	"AskRequest.use_cot":         "Reason in two stages and answer in one body (ask only)",
	"AskRequest.selected_files":  "Uploaded file identifiers as listed by /files",
	"AgentRequest.plugin_detail": "Tools to enable for this request",
	"Plugin.tool_name":           "web_search, wikipedia, arxiv or code_interpreter",
	"StreamEvent.type":           "chunk, done or error",
	"StreamEvent.content":        "Answer text, or the error message",
	"UploadResponse.message":     "What happens next",
	"UploadResponse.file_name":   "Name the file was stored under",
	"ErrorDetail.code":           "Machine-readable error code",
	"ErrorDetail.message":        "Human-readable error message",
}

// schemaOf derives a schema from t's kind. Component types are
// referenced rather than inlined.
func schemaOf(t reflect.Type) OpenAPISchema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return OpenAPISchema{Type: "string"}
	case reflect.Bool:
		return OpenAPISchema{Type: "boolean"}
	case reflect.Int, reflect.Int32, reflect.Int64:
		return OpenAPISchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return OpenAPISchema{Type: "number"}
	case reflect.Slice:
		items := schemaOf(t.Elem())
		return OpenAPISchema{Type: "array", Items: &items}
	case reflect.Struct:
		if name, ok := components[t]; ok {
			return OpenAPISchema{Ref: "#/components/schemas/" + name}
		}
	}
	return OpenAPISchema{Type: "object"}
}

// componentSchema expands a component type into an object schema from
// its json tags. Embedded structs are flattened.
func componentSchema(t reflect.Type, name string) OpenAPISchema {
	out := OpenAPISchema{Type: "object", Properties: map[string]OpenAPISchema{}}

	var walk func(t reflect.Type, owner string)
	walk = func(t reflect.Type, owner string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type, components[f.Type])
				continue
			}
			field, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
			if field == "-" || !f.IsExported() {
				continue
			}
			if field == "" {
				field = f.Name
			}

			prop := schemaOf(f.Type)
			prop.Description = fieldDocs[owner+"."+field]
			out.Properties[field] = prop

			required := !strings.Contains(opts, "omitempty")
			if requests[name] {
				// Rules after "dive" apply to elements, not the field.
				rules, _, _ := strings.Cut(f.Tag.Get("validate"), "dive")
				required = slices.Contains(strings.Split(rules, ","), "required")
			}
			if required {
				out.Required = append(out.Required, field)
			}
		}
	}
	walk(t, name)

	slices.Sort(out.Required)
	return out
}

func jsonContent(name string) map[string]OpenAPIMediaType {
	return map[string]OpenAPIMediaType{
		"application/json": {Schema: OpenAPISchema{Ref: "#/components/schemas/" + name}},
	}
}

func errorResponse(description string) OpenAPIResponse {
	return OpenAPIResponse{Description: description, Content: jsonContent("ErrorResponse")}
}

// questionResponses adds the failures shared by /ask and /agent to a
// success response.
func questionResponses(ok OpenAPIResponse) map[string]OpenAPIResponse {
	return map[string]OpenAPIResponse{
		"200": ok,
		"400": errorResponse("Invalid request, unknown model or unsupported file"),
		"500": errorResponse("Server error"),
		"502": errorResponse("Retrieval or model failure"),
		"504": errorResponse("Model or retrieval timed out"),
	}
}

// BuildOpenAPISpec describes the HTTP API. It needs no running server, so
// the command line can print it too.
func BuildOpenAPISpec() OpenAPISpec {
	session := OpenAPIParameter{
		Name:        sessionHeader,
		In:          "header",
		Description: "Conversation session; a new anonymous session is used when absent. Echoed on the response.",
		Schema:      OpenAPISchema{Type: "string"},
	}
	stream := func(description string) OpenAPIMediaType {
		return OpenAPIMediaType{Schema: OpenAPISchema{Type: "string", Description: description}}
	}

	schemas := make(map[string]OpenAPISchema, len(components))
	for t, name := range components {
		schemas[name] = componentSchema(t, name)
	}

	return OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "pgEdge Ask Server API",
			Description: "Conversational question answering with optional retrieval and two-stage reasoning",
			Version:     "1.0.0",
		},
		Servers: []OpenAPIServer{{URL: "/api", Description: "API"}},
		Paths: map[string]OpenAPIPath{
			"/health": {Get: &OpenAPIOperation{
				Summary:     "Health check",
				OperationID: "getHealth",
				Tags:        []string{"System"},
				Responses: map[string]OpenAPIResponse{
					"200": {Description: "Server is healthy", Content: jsonContent("HealthResponse")},
				},
			}},
			"/ask": {Post: &OpenAPIOperation{
				Summary: "Ask a question",
				Description: "Answer a question within a session. With use_cot the answer is one text/plain " +
					"body holding [Thought] and [Final Answer] sections; otherwise it streams as Server-Sent Events.",
				OperationID: "ask",
				Tags:        []string{"Questions"},
				Parameters:  []OpenAPIParameter{session},
				RequestBody: &OpenAPIRequestBody{Required: true, Content: jsonContent("AskRequest")},
				Responses: questionResponses(OpenAPIResponse{
					Description: "Answer",
					Content: map[string]OpenAPIMediaType{
						"text/plain":        stream("Reasoned answer"),
						"text/event-stream": stream("data: frames carrying StreamEvent JSON, ending with a done event"),
					},
				}),
			}},
			"/agent": {Post: &OpenAPIOperation{
				Summary:     "Ask the agent",
				Description: "Answer a question with the enabled tools. Streams the trimmed final output followed by a blank line.",
				OperationID: "askAgent",
				Tags:        []string{"Questions"},
				Parameters:  []OpenAPIParameter{session},
				RequestBody: &OpenAPIRequestBody{Required: true, Content: jsonContent("AgentRequest")},
				Responses: questionResponses(OpenAPIResponse{
					Description: "Agent output",
					Content:     map[string]OpenAPIMediaType{"text/event-stream": stream("Final output")},
				}),
			}},
			"/files": {Get: &OpenAPIOperation{
				Summary:     "List uploaded files",
				OperationID: "listFiles",
				Tags:        []string{"Files"},
				Responses: map[string]OpenAPIResponse{
					"200": {
						Description: "Uploaded file paths",
						Content: map[string]OpenAPIMediaType{
							"application/json": {Schema: schemaOf(reflect.TypeFor[[]string]())},
						},
					},
					"500": errorResponse("Server error"),
				},
			}},
			"/upload": {Post: &OpenAPIOperation{
				Summary:     "Upload a file",
				Description: "Store a .txt, .pdf or .csv file under a free name and schedule indexing",
				OperationID: "uploadFile",
				Tags:        []string{"Files"},
				RequestBody: &OpenAPIRequestBody{
					Required: true,
					Content: map[string]OpenAPIMediaType{
						"multipart/form-data": {Schema: OpenAPISchema{
							Type:       "object",
							Properties: map[string]OpenAPISchema{"file": {Type: "string", Format: "binary"}},
							Required:   []string{"file"},
						}},
					},
				},
				Responses: map[string]OpenAPIResponse{
					"200": {Description: "File stored", Content: jsonContent("UploadResponse")},
					"400": errorResponse("Missing or unsupported file"),
					"413": errorResponse("File too large"),
					"500": errorResponse("Server error"),
				},
			}},
		},
		Components: OpenAPIComponents{Schemas: schemas},
	}
}
