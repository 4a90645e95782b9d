package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"table1837/internal/checklist"
	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/engine"
	"table1837/internal/engine/auth"
	"table1837/internal/hub"
	"table1837/internal/migrate"
	"table1837/internal/pourcost"
	"table1837/internal/realtime"
	"table1837/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Hub      *hub.Hub
	BasePath string
	Auth     AuthConfig
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"dependencies_incomplete"`
	Message string         `json:"message" example:"task dependencies not complete"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"task_id\":\"o3\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var channels = map[string]bool{
	realtime.Channel86List:       true,
	realtime.ChannelReservations: true,
	realtime.ChannelAlerts:       true,
}

// New returns an HTTP handler exposing the staff API, the channel sockets
// and, when configured, prometheus metrics.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newLoggingMiddleware(logger, cfg.Engine.Metrics))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Table 1837 Staff API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerContext(group, cfg.Engine)
	registerEightySix(group, cfg.Engine)
	registerChecklists(group, cfg.Engine)
	registerPourCost(group, cfg.Engine)
	registerPalette(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerChannels(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)
	if cfg.Hub != nil {
		registerSockets(router, cfg.Hub, cfg.Auth, cfg.Engine.Repo)
	}
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return router, nil
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
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": fe.Capability})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, checklist.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, checklist.ErrDependenciesIncomplete):
		return newAPIError(http.StatusConflict, "dependencies_incomplete", err.Error(), nil)
	case errors.Is(err, eightysix.ErrNameRequired), errors.Is(err, eightysix.ErrInvalidCategory):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, pourcost.ErrInvalidMenuPrice):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
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
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Table 1837 API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		version, err := migrate.CurrentVersion(ctx, e.DB)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", SchemaVersion: version}}, nil
	})
}

func registerContext(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "service-context",
		Method:      http.MethodGet,
		Path:        "/context",
		Summary:     "Venue, shift and capabilities of the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ServiceContext `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sc, err := e.Context(principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ServiceContext `json:"body"`
		}{Body: sc}, nil
	})
}

func registerEightySix(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-86-items",
		Method:      http.MethodGet,
		Path:        "/86-list/items",
		Summary:     "Items currently 86'd, oldest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ItemsResponse `json:"body"`
	}, error) {
		items, err := e.ListItems(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemsResponse `json:"body"`
		}{Body: ItemsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-86-item",
		Method:        http.MethodPost,
		Path:          "/86-list/items",
		Summary:       "86 an item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body AddItemRequest `json:"body"`
	}) (*struct {
		Body domain.EightySixItem `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := e.AddItem(ctx, engine.AddItemOptions{
			Draft: eightysix.Draft{
				Name:            input.Body.Name,
				Category:        input.Body.Category,
				Reason:          input.Body.Reason,
				EstimatedReturn: input.Body.EstimatedReturn,
			},
			Actor: principal,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EightySixItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-86-item",
		Method:        http.MethodDelete,
		Path:          "/86-list/items/{id}",
		Summary:       "Put an item back on the menu",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveItem(ctx, input.ID, principal); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerChecklists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checklists",
		Method:      http.MethodGet,
		Path:        "/checklists",
		Summary:     "Checklists with current sign-offs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Hour   int    `query:"hour" default:"-1" doc:"Only checklists active at this hour; -1 for all"`
		Status string `query:"status" default:"all" enum:"all,pending,completed"`
	}) (*struct {
		Body ChecklistsResponse `json:"body"`
	}, error) {
		if input.Hour < -1 || input.Hour > 23 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid hour", map[string]any{"hour": input.Hour})
		}
		lists, err := e.Checklists(ctx, input.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		filter := checklist.Filter(input.Status)
		for i := range lists {
			lists[i].Items = checklist.FilterTasks(lists[i].Items, filter)
		}
		return &struct {
			Body ChecklistsResponse `json:"body"`
		}{Body: ChecklistsResponse{Checklists: lists}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}",
		Summary:     "One checklist with current sign-offs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChecklistID string `path:"checklist_id"`
	}) (*struct {
		Body domain.Checklist `json:"body"`
	}, error) {
		cl, err := e.Checklist(ctx, input.ChecklistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checklist `json:"body"`
		}{Body: cl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-checklist-task",
		Method:      http.MethodPost,
		Path:        "/checklists/{checklist_id}/tasks/{task_id}/toggle",
		Summary:     "Complete or reopen a task",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ChecklistID string `path:"checklist_id"`
		TaskID      string `path:"task_id"`
	}) (*struct {
		Body domain.Checklist `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cl, err := e.ToggleTask(ctx, input.ChecklistID, input.TaskID, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checklist `json:"body"`
		}{Body: cl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-checklists",
		Method:      http.MethodPost,
		Path:        "/checklists/reset",
		Summary:     "Clear sign-offs for the next shift",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body ResetChecklistsRequest `json:"body"`
	}) (*struct {
		Body ResetChecklistsResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.ResetChecklists(ctx, strings.TrimSpace(input.Body.ChecklistID), principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResetChecklistsResponse `json:"body"`
		}{Body: ResetChecklistsResponse{Cleared: n}}, nil
	})
}

func registerPourCost(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cocktails",
		Method:      http.MethodGet,
		Path:        "/cocktails",
		Summary:     "Cocktail menu with cost breakdowns",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.CocktailList `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.Cocktails(ctx, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CocktailList `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "calculate-pour-cost",
		Method:      http.MethodPost,
		Path:        "/pour-cost",
		Summary:     "Price an ad hoc cocktail",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body domain.Cocktail `json:"body"`
	}) (*struct {
		Body engine.PourCostResult `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.PourCost(ctx, input.Body, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PourCostResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cocktail-pour-cost",
		Method:      http.MethodGet,
		Path:        "/cocktails/{id}/pour-cost",
		Summary:     "Price a menu cocktail",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.PourCostResult `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CocktailPourCost(ctx, input.ID, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PourCostResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerPalette(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "palette",
		Method:      http.MethodGet,
		Path:        "/palette",
		Summary:     "Commands matching a query, most relevant first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Query string `query:"q"`
	}) (*struct {
		Body PaletteResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cmds, err := e.Palette(principal, input.Query)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaletteResponse `json:"body"`
		}{Body: PaletteResponse{Commands: nonNilSlice(cmds)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		Channel    string `query:"channel"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			Channel:    input.Channel,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerChannels(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "channel-messages",
		Method:      http.MethodGet,
		Path:        "/channels/{channel}/messages",
		Summary:     "Recent payloads broadcast on a channel, oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Channel string `path:"channel"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body ChannelMessagesResponse `json:"body"`
	}, error) {
		if !channels[input.Channel] {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown channel", map[string]any{"channel": input.Channel})
		}
		msgs, err := e.Repo.ChannelMessages(ctx, input.Channel, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		resp := ChannelMessagesResponse{Messages: make([]ChannelMessageResponse, 0, len(msgs))}
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, channelMessageResponse(m))
		}
		return &struct {
			Body ChannelMessagesResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for a device",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, key, err := e.CreateAPIKey(ctx, strings.TrimSpace(input.Body.ActorID), input.Body.Name, input.Body.Roles, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{
			ID:      key.ID,
			ActorID: key.ActorID,
			Name:    key.Name,
			Roles:   nonNilSlice(repo.SplitRoles(key.Roles)),
			Key:     plain,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.DevLogin {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login disabled", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Name, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

// registerSockets mounts the channel sockets. Credentials are optional:
// anonymous sessions may listen and relay messages but their item requests
// fail the capability check.
func registerSockets(r chi.Router, h *hub.Hub, cfg AuthConfig, rp repo.Repo) {
	r.Get("/ws/{channel}", func(w http.ResponseWriter, req *http.Request) {
		channel := chi.URLParam(req, "channel")
		if !channels[channel] {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "unknown channel", map[string]any{"channel": channel}))
			return
		}
		principal, ok, err := authenticate(req, cfg, rp)
		if ok && err != nil {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			return
		}
		if ok {
			req = req.WithContext(withPrincipal(req.Context(), principal))
		}
		h.ServeChannel(w, req, channel)
	})
}

// Requests adapts the engine's legacy frame handling to the hub. The
// principal is the one authenticated on the socket's upgrade request.
func Requests(e engine.Engine, logger *slog.Logger) hub.RequestFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, channel string, data json.RawMessage) bool {
		if channel != realtime.Channel86List {
			return false
		}
		principal, _ := principalFromContext(ctx)
		handled, err := e.HandleRequest(ctx, principal, data)
		if err != nil {
			logger.Warn("socket request rejected", "actor", principal.ActorID, "err", err)
		}
		return handled
	}
}

// Snapshot returns the FULL_SYNC sent to new 86-list sessions.
func Snapshot(e engine.Engine) hub.SnapshotFunc {
	return func(ctx context.Context) (any, error) {
		return e.FullSync(ctx)
	}
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
