package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"

	"github.com/kosarica/feed-service/internal/generator"
	"github.com/kosarica/feed-service/internal/types"
)

// SwaggerInstance names the API document in the swag registry
const SwaggerInstance = "feeds"

var (
	registerDoc    sync.Once
	registerDocErr error
)

type apiDoc string

func (d apiDoc) ReadDoc() string { return string(d) }

type docRoute struct {
	method   string
	path     string
	summary  string
	tag      string
	query    []map[string]any
	status   int
	response any
	produces string
}

func feedParam() map[string]any {
	return map[string]any{"name": "feed", "in": "path", "required": true, "type": "string", "description": "Feed id or code"}
}

func queryParam(name, typ, desc string) map[string]any {
	return map[string]any{"name": name, "in": "query", "required": false, "type": typ, "description": desc}
}

func docRoutes() []docRoute {
	limit := queryParam("limit", "integer", "Number of items")
	limit["minimum"] = 0
	limit["maximum"] = 100

	return []docRoute{
		{method: "get", path: "/internal/feeds", summary: "List feeds", tag: "feeds",
			query: []map[string]any{queryParam("active", "boolean", "Only active feeds")}, status: http.StatusOK, response: ListFeedsResponse{}},
		{method: "get", path: "/internal/feeds/{feed}", summary: "Get feed", tag: "feeds", status: http.StatusOK, response: types.Feed{}},
		{method: "post", path: "/internal/feeds/{feed}/generate", summary: "Generate feed", tag: "feeds",
			query: []map[string]any{queryParam("wait", "boolean", "Wait for the run to finish")}, status: http.StatusAccepted, response: GenerateResponse{}},
		{method: "get", path: "/internal/feeds/{feed}/status", summary: "Generation status", tag: "feeds", status: http.StatusOK, response: generator.Status{}},
		{method: "get", path: "/internal/feeds/{feed}/preview", summary: "Preview feed", tag: "feeds",
			query: []map[string]any{limit}, status: http.StatusOK, produces: "text/plain"},
		{method: "get", path: "/internal/feeds/{feed}/logs", summary: "List generation logs", tag: "feeds",
			query: []map[string]any{limit}, status: http.StatusOK, response: ListLogsResponse{}},
		{method: "get", path: "/internal/feeds/{feed}/download", summary: "Download feed file", tag: "feeds",
			status: http.StatusOK, produces: "application/octet-stream"},
		{method: "post", path: "/internal/scheduler/run", summary: "Run due feeds", tag: "scheduler", status: http.StatusOK, response: RunSchedulerResponse{}},
		{method: "get", path: "/internal/health", summary: "Health check", tag: "health", status: http.StatusOK, response: HealthResponse{}},
	}
}

// SwaggerDoc builds the swagger 2.0 document for the internal API from the
// request and response types.
func SwaggerDoc(apiKeyHeader string) ([]byte, error) {
	reflector := &jsonschema.Reflector{}
	definitions := map[string]any{}

	ref := func(v any) map[string]any {
		schema := reflector.Reflect(v)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
		return map[string]any{"$ref": "#/definitions/" + path.Base(schema.Ref)}
	}

	paths := map[string]map[string]any{}
	for _, r := range docRoutes() {
		params := []map[string]any{}
		if strings.Contains(r.path, "{feed}") {
			params = append(params, feedParam())
		}
		params = append(params, r.query...)

		resp := map[string]any{"description": http.StatusText(r.status)}
		if r.response != nil {
			resp["schema"] = ref(r.response)
		}
		produces := r.produces
		if produces == "" {
			produces = "application/json"
		}

		if paths[r.path] == nil {
			paths[r.path] = map[string]any{}
		}
		paths[r.path][r.method] = map[string]any{
			"summary":    r.summary,
			"tags":       []string{r.tag},
			"produces":   []string{produces},
			"parameters": params,
			"security":   []map[string][]string{{"InternalKey": {}}},
			"responses": map[string]any{
				strconv.Itoa(r.status): resp,
				"404":                  map[string]any{"description": "Feed not found"},
			},
		}
	}

	doc := map[string]any{
		"swagger": "2.0",
		"info": map[string]any{
			"title":       "Feed Service API",
			"description": "Internal API for generating, previewing and publishing product feeds",
			"version":     "1.0",
		},
		"basePath": "/",
		"paths":    paths,
		"securityDefinitions": map[string]any{
			"InternalKey": map[string]any{"type": "apiKey", "in": "header", "name": apiKeyHeader},
		},
		"definitions": definitions,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swagger doc: %w", err)
	}
	// jsonschema references $defs; swagger 2.0 only knows definitions
	return bytes.ReplaceAll(data, []byte(`"#/$defs/`), []byte(`"#/definitions/`)), nil
}

// RegisterSwagger serves the swagger UI and document under /swagger
func RegisterSwagger(r gin.IRoutes, apiKeyHeader string) error {
	registerDoc.Do(func() {
		var data []byte
		data, registerDocErr = SwaggerDoc(apiKeyHeader)
		if registerDocErr == nil {
			swag.Register(SwaggerInstance, apiDoc(data))
		}
	})
	if registerDocErr != nil {
		return registerDocErr
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(SwaggerInstance)))
	return nil
}
