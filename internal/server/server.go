package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"batchline/internal/domain"
	"batchline/internal/planner"
	"batchline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   planner.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"slot_conflict"`
	Message string         `json:"message" example:"slot already held by another planned order"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope every endpoint returns on failure.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Batchline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Batchline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerOrders(group, cfg.Engine)
	registerReactors(group, cfg.Engine)
	registerHolidays(group, cfg.Engine)
	registerPlan(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var conflict *planner.SlotConflictError
	if errors.As(err, &conflict) {
		return newAPIError(http.StatusConflict, "slot_conflict", err.Error(), map[string]any{"collisions": conflict.Collisions})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not a working day"),
		strings.Contains(lowered, "no longer planned"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "no assignments"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Batchline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Workspace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		counts, err := e.Repo.CountOrdersByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		reactors, err := e.Repo.ListReactors(ctx, true)
		if err != nil {
			return nil, handleError(err)
		}
		holidays, err := e.Repo.ListHolidays(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			OrderCounts:    counts,
			ActiveReactors: len(reactors),
			Holidays:       len(holidays),
		}}, nil
	})
}

func registerOrders(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create order",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ArticleCode == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "article_code is required", nil)
		}
		qty, err := decimal.NewFromString(input.Body.QuantityKg)
		if err != nil || !qty.IsPositive() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "quantity_kg must be a positive number", nil)
		}
		for _, d := range []*string{input.Body.OrderDate, input.Body.Deadline} {
			if d == nil {
				continue
			}
			if _, err := planner.ParseDay(*d); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "dates must be YYYY-MM-DD", nil)
			}
		}
		id := uuid.New().String()
		if input.Body.ID != nil && *input.Body.ID != "" {
			id = *input.Body.ID
		}
		now := time.Now().UTC().Format(time.RFC3339)
		o := domain.Order{
			ID:          id,
			ArticleCode: input.Body.ArticleCode,
			QuantityKg:  qty,
			OrderedKg:   qty,
			ServedKg:    decimal.Zero,
			PendingKg:   qty,
			OrderDate:   input.Body.OrderDate,
			Deadline:    input.Body.Deadline,
			Status:      domain.StatusPending,
			ExternalID:  input.Body.ExternalID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if input.Body.ArticleDescription != nil {
			o.ArticleDescription = *input.Body.ArticleDescription
		}
		if input.Body.ClientName != nil {
			o.ClientName = *input.Body.ClientName
		}
		if input.Body.OrderReference != nil {
			o.OrderReference = *input.Body.OrderReference
		}
		if err := e.Repo.InsertOrder(ctx, o); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status  string `query:"status" enum:"pending,planned,produced" required:"false"`
		Client  string `query:"client" required:"false"`
		Article string `query:"article" required:"false"`
		Limit   int    `query:"limit" required:"false" minimum:"0"`
	}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListOrders(ctx, repo.OrderFilters{
			Status:  input.Status,
			Client:  input.Client,
			Article: input.Article,
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: mapOrders(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		o, err := e.Repo.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-order",
		Method:      http.MethodDelete,
		Path:        "/orders/{order_id}",
		Summary:     "Delete order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteOrder(ctx, input.OrderID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReactors(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reactor",
		Method:        http.MethodPost,
		Path:          "/reactors",
		Summary:       "Create reactor",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateReactorRequest `json:"body"`
	}) (*struct {
		Body ReactorResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		capacity, err := decimal.NewFromString(input.Body.CapacityKg)
		if err != nil || !capacity.IsPositive() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "capacity_kg must be a positive number", nil)
		}
		name := input.Body.Name
		if name == "" {
			name = input.Body.ID
		}
		r := domain.Reactor{
			ID:         input.Body.ID,
			Name:       name,
			CapacityKg: capacity,
			Active:     true,
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertReactor(ctx, r); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReactorResponse `json:"body"`
		}{Body: reactorResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reactors",
		Method:      http.MethodGet,
		Path:        "/reactors",
		Summary:     "List reactors",
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active" required:"false"`
	}) (*struct {
		Body []ReactorResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListReactors(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReactorResponse `json:"body"`
		}{Body: mapReactors(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-reactor",
		Method:      http.MethodPatch,
		Path:        "/reactors/{reactor_id}",
		Summary:     "Update reactor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ReactorID string               `path:"reactor_id"`
		Body      UpdateReactorRequest `json:"body"`
	}) (*struct {
		Body ReactorResponse `json:"body"`
	}, error) {
		if input.Body.Active == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "active is required", nil)
		}
		if err := e.Repo.SetReactorActive(ctx, input.ReactorID, *input.Body.Active); err != nil {
			return nil, handleError(err)
		}
		r, err := e.Repo.GetReactor(ctx, input.ReactorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReactorResponse `json:"body"`
		}{Body: reactorResponse(r)}, nil
	})
}

func registerHolidays(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-holiday",
		Method:        http.MethodPost,
		Path:          "/holidays",
		Summary:       "Add holiday",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateHolidayRequest `json:"body"`
	}) (*struct {
		Body HolidayResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := planner.ParseDay(input.Body.Day); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "day must be YYYY-MM-DD", nil)
		}
		h := domain.Holiday{Day: input.Body.Day, Description: input.Body.Description}
		if err := e.Repo.UpsertHoliday(ctx, h); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HolidayResponse `json:"body"`
		}{Body: HolidayResponse{Day: h.Day, Description: h.Description}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-holidays",
		Method:      http.MethodGet,
		Path:        "/holidays",
		Summary:     "List holidays",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []HolidayResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListHolidays(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HolidayResponse `json:"body"`
		}{Body: mapHolidays(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-holiday",
		Method:      http.MethodDelete,
		Path:        "/holidays/{day}",
		Summary:     "Remove holiday",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Day string `path:"day"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteHoliday(ctx, input.Day); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPlan(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-run",
		Method:      http.MethodPost,
		Path:        "/plan/runs",
		Summary:     "Run the scheduler over pending orders",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body PlanRunRequest `json:"body"`
	}) (*struct {
		Body PlanRunResponse `json:"body"`
	}, error) {
		report, err := e.Run(ctx, planner.RunOptions{
			OrderIDs: input.Body.OrderIDs,
			ActorID:  actorOrDefault(input.Body.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanRunResponse `json:"body"`
		}{Body: runResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "plan-confirm",
		Method:      http.MethodPost,
		Path:        "/plan/confirm",
		Summary:     "Confirm a reviewed assignment set",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body PlanConfirmRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		edits := make([]planner.AssignmentEdit, 0, len(input.Body.Assignments))
		for _, a := range input.Body.Assignments {
			edits = append(edits, planner.AssignmentEdit{
				OrderID:   a.OrderID,
				PlanDate:  a.PlanDate,
				ReactorID: a.ReactorID,
				Shift:     a.Shift,
			})
		}
		if err := e.Confirm(ctx, edits, actorOrDefault(input.Body.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"confirmed": len(edits)}}, nil
	})
}

func registerEvents(api huma.API, e planner.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" required:"false" minimum:"0"`
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		EntityID   string `query:"entity_id" required:"false"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}
