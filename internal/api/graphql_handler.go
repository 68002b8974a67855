package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/rs/zerolog/log"

	"github.com/mingafix/mingafix/internal/observability"
	"github.com/mingafix/mingafix/internal/ratelimit"
	"github.com/mingafix/mingafix/internal/reports"
)

// GraphQLHandler serves the report API over GraphQL.
type GraphQLHandler struct {
	store      reports.Store
	detector   *reports.Detector
	updater    *reports.Updater
	aggregator *reports.Aggregator
	limiter    *ratelimit.Limiter
	policy     ratelimit.Policy
	metrics    *observability.Metrics

	schema graphql.Schema
}

// GraphQLRequest represents a GraphQL HTTP request body
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL HTTP response body
type GraphQLResponse struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message   string                 `json:"message"`
	Locations []GraphQLErrorLocation `json:"locations,omitempty"`
	Path      []interface{}          `json:"path,omitempty"`
}

// GraphQLErrorLocation represents the location of a GraphQL error in the query
type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NewGraphQLHandler creates a GraphQL handler over the given store.
func NewGraphQLHandler(store reports.Store, limiter *ratelimit.Limiter, policy ratelimit.Policy, metrics *observability.Metrics) (*GraphQLHandler, error) {
	h := &GraphQLHandler{
		store:      store,
		detector:   reports.NewDetector(store),
		updater:    reports.NewUpdater(store),
		aggregator: reports.NewAggregator(store),
		limiter:    limiter,
		policy:     policy,
		metrics:    metrics,
	}
	if metrics != nil {
		h.detector.OnCheckFailure(metrics.RecordDedupCheckFailure)
		h.aggregator.OnComputeFailure(metrics.RecordStatsComputeFailure)
	}

	schema, err := h.buildSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	h.schema = schema

	return h, nil
}

// HandleGraphQL handles POST /graphql requests
func (h *GraphQLHandler) HandleGraphQL(c *fiber.Ctx) error {
	startTime := time.Now()

	var req GraphQLRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Invalid JSON in request body"}},
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Query string is required"}},
		})
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        c.Context(),
	})

	log.Debug().
		Str("operation", req.OperationName).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(startTime)).
		Msg("GraphQL query executed")

	return c.JSON(GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
}

// HandlePlayground handles GET /graphql, serving an interactive console.
func (h *GraphQLHandler) HandlePlayground(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(playgroundHTML)
}

// convertErrors converts graphql-go errors to the wire format
func convertErrors(errs []gqlerrors.FormattedError) []GraphQLError {
	if len(errs) == 0 {
		return nil
	}

	out := make([]GraphQLError, len(errs))
	for i, err := range errs {
		gqlErr := GraphQLError{
			Message: err.Message,
			Path:    err.Path,
		}
		if len(err.Locations) > 0 {
			gqlErr.Locations = make([]GraphQLErrorLocation, len(err.Locations))
			for j, loc := range err.Locations {
				gqlErr.Locations[j] = GraphQLErrorLocation{
					Line:   loc.Line,
					Column: loc.Column,
				}
			}
		}
		out[i] = gqlErr
	}
	return out
}

const playgroundHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Mingafix GraphQL</title>
  <link rel="stylesheet" href="https://unpkg.com/graphiql/graphiql.min.css" />
</head>
<body style="margin: 0;">
  <div id="graphiql" style="height: 100vh;"></div>
  <script crossorigin src="https://unpkg.com/react/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom/umd/react-dom.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/graphiql/graphiql.min.js"></script>
  <script>
    const fetcher = GraphiQL.createFetcher({ url: '/graphql' });
    ReactDOM.render(
      React.createElement(GraphiQL, { fetcher: fetcher }),
      document.getElementById('graphiql'),
    );
  </script>
</body>
</html>`
