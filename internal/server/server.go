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
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"pactline/internal/backend"
	"pactline/internal/chat"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/logging"
	"pactline/internal/repo"
	"pactline/internal/taskboard"
	"pactline/internal/versions"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// BackendFor builds a backend client carrying the caller's token. When nil every
	// caller shares Engine.Backend.
	BackendFor func(token string) engine.Backend
	// PollInterval is how often open sessions re-read their contract. Zero disables
	// polling.
	PollInterval time.Duration
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"upload_not_allowed"`
	Message string         `json:"message" example:"contract is Signed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"Signed\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var errSessionNotOpen = errors.New("contract session not open")

// Server serves the local contract API and polls the sessions it holds open.
type Server struct {
	handler    http.Handler
	engine     engine.Engine
	backendFor func(string) engine.Backend
	sessions   *sessionRegistry
	stopPoll   context.CancelFunc
	pollDone   chan struct{}
}

// New returns the API server. Close stops the poller and ends open sessions.
func New(cfg Config) (*Server, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("no JWT secret configured; bearer tokens are read without verification and left to the backend")
	}

	s := &Server{
		engine:     cfg.Engine,
		backendFor: cfg.BackendFor,
		sessions:   newSessionRegistry(),
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Pactline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerContracts(group, s)
	registerSessions(group, s)
	registerAnalysis(group, s)
	registerChat(group, s)
	registerUpload(group, s)
	registerEvents(group, s.engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)
	s.handler = router

	if cfg.PollInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopPoll = cancel
		s.pollDone = make(chan struct{})
		p := &sessionPoller{sessions: s.sessions, interval: cfg.PollInterval}
		go func() {
			defer close(s.pollDone)
			p.run(ctx)
		}()
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// PollOnce refreshes every open session immediately.
func (s *Server) PollOnce(ctx context.Context) {
	(&sessionPoller{sessions: s.sessions}).pollAll(ctx)
}

// Close stops polling and closes every open session.
func (s *Server) Close() error {
	if s.stopPoll != nil {
		s.stopPoll()
		<-s.pollDone
	}
	for _, c := range s.sessions.drain() {
		c.Close(context.Background())
	}
	return nil
}

// engineFor returns the engine talking to the backend as the caller.
func (s *Server) engineFor(ctx context.Context) engine.Engine {
	if s.backendFor == nil {
		return s.engine
	}
	p, _ := principalFromContext(ctx)
	return s.engine.WithBackend(s.backendFor(p.Token))
}

// session returns the caller's open session for a contract.
func (s *Server) session(ctx context.Context, contractID string) (*engine.Contract, error) {
	actorID, apiErr := actorIDFromContext(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	c, ok := s.sessions.get(actorID, contractID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotOpen, contractID)
	}
	return c, nil
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", msg, map[string]any{"action": fe.Action, "role": string(fe.Role)})
	}
	var ue *engine.UploadError
	switch {
	case errors.Is(err, errSessionNotOpen):
		return newAPIError(http.StatusNotFound, "session_not_open", msg, nil)
	case errors.Is(err, engine.ErrUploadInProgress), errors.Is(err, chat.ErrSendInProgress):
		return newAPIError(http.StatusConflict, "in_progress", msg, nil)
	case errors.Is(err, engine.ErrUploadNotAllowed):
		return newAPIError(http.StatusConflict, "upload_not_allowed", msg, nil)
	case errors.As(err, &ue) && errors.Is(err, engine.ErrInvalidUpload):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_upload", msg, map[string]any{"reason": ue.Reason})
	case errors.Is(err, chat.ErrEmptyInput):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case errors.Is(err, chat.ErrNoPinnedVersion), errors.Is(err, chat.ErrSuperseded):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, backend.ErrUnauthorized):
		return newAPIError(http.StatusUnauthorized, "backend_unauthorized", msg, nil)
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, versions.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "backend_timeout", msg, nil)
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return newAPIError(http.StatusNotFound, "not_found", msg, map[string]any{"detail": apiErr.Detail})
		}
		return newAPIError(http.StatusBadGateway, "backend_error", msg, map[string]any{"status": apiErr.StatusCode, "detail": apiErr.Detail})
	}
	if errors.Is(err, chat.ErrChatRequestFailed) ||
		errors.Is(err, versions.ErrEmptyHistory) ||
		errors.Is(err, backend.ErrMalformedPayload) {
		return newAPIError(http.StatusBadGateway, "backend_error", msg, nil)
	}
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "unknown") || strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{}
	for _, p := range publicPaths(basePath) {
		public[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if public[route] {
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
    <title>Pactline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
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

func registerContracts(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List the caller's contracts grouped by status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"Draft,NeedsRevision,AwaitingSignatures,Signed,ExpiringSoon,Expired"`
	}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		dash, err := s.engineFor(ctx).ListContracts(ctx, contractStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: dash}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}",
		Summary:     "Contract view of an open session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Versions int    `query:"versions" default:"4" doc:"versions to show, 0 for all"`
	}) (*struct {
		Body ContractView `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractView `json:"body"`
		}{Body: contractView(c, input.Versions)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/refresh",
		Summary:     "Re-read an open contract from the backend",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ContractView `json:"body"`
	}, error) {
		ctx = logging.WithContractID(ctx, input.ID)
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := c.Refresh(ctx, true); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractView `json:"body"`
		}{Body: contractView(c, versions.DefaultDisplayLimit)}, nil
	})
}

func registerSessions(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "open-session",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/session",
		Summary:     "Open a contract session",
		Description: "Reads the contract, restores its chat and starts polling it. Opening an already open session returns it unchanged.",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ContractView `json:"body"`
	}, error) {
		ctx = logging.WithContractID(ctx, input.ID)
		actorID, apiErr := actorIDFromContext(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		c, ok := s.sessions.get(actorID, input.ID)
		if !ok {
			opened, err := s.engineFor(ctx).OpenContract(ctx, input.ID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			c = s.sessions.add(actorID, opened)
		}
		return &struct {
			Body ContractView `json:"body"`
		}{Body: contractView(c, versions.DefaultDisplayLimit)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-session",
		Method:        http.MethodDelete,
		Path:          "/contracts/{id}/session",
		Summary:       "Close a contract session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, apiErr := actorIDFromContext(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		c, ok := s.sessions.remove(actorID, input.ID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", errSessionNotOpen, input.ID))
		}
		c.Close(ctx)
		return &struct{}{}, nil
	})
}

func registerAnalysis(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "select-analysis",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/selection",
		Summary:     "Toggle the displayed analysis",
		Description: "Selecting the current selection clears it.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SelectRequest
	}) (*struct {
		Body SelectionResponse `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := c.Select(input.Body.Kind); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SelectionResponse `json:"body"`
		}{Body: selectionResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-selection",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/selection",
		Summary:     "Current selection and its analysis",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SelectionResponse `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SelectionResponse `json:"body"`
		}{Body: selectionResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-analysis",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/analysis/{kind}",
		Summary:     "Analysis of one task of the latest version",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Kind string `path:"kind" enum:"ClauseExtraction,RiskAssessment,Embedding,Diff,Chat"`
	}) (*struct {
		Body AnalysisResponse `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisResponse `json:"body"`
		}{Body: analysisResponse(c.Analysis(taskKind(input.Kind)))}, nil
	})
}

func registerChat(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "chat-history",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/chat",
		Summary:     "Chat history pinned to the latest version",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ChatHistoryResponse `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatHistoryResponse `json:"body"`
		}{Body: chatHistoryResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-send",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/chat",
		Summary:     "Ask about the latest version",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ChatSendRequest
	}) (*struct {
		Body ChatSendResponse `json:"body"`
	}, error) {
		ctx = logging.WithContractID(ctx, input.ID)
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		msg, err := c.SendChat(ctx, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatSendResponse `json:"body"`
		}{Body: ChatSendResponse{Message: msg, History: chatHistoryResponse(c)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-reset",
		Method:      http.MethodDelete,
		Path:        "/contracts/{id}/chat",
		Summary:     "Clear the conversation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ChatHistoryResponse `json:"body"`
	}, error) {
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := c.ResetChat(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatHistoryResponse `json:"body"`
		}{Body: chatHistoryResponse(c)}, nil
	})
}

func registerUpload(api huma.API, s *Server) {
	limit := s.engine.Config.Upload.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	huma.Register(api, huma.Operation{
		OperationID:   "upload-version",
		Method:        http.MethodPost,
		Path:          "/contracts/{id}/versions",
		Summary:       "Upload a new contract version",
		Description:   "The request body is the PDF file. The new version becomes the latest, the task board starts over and the chat is pinned to it.",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  limit + 1<<20,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Filename string `query:"filename" required:"true"`
		RawBody  []byte `contentType:"application/pdf"`
	}) (*struct {
		Body UploadResponse `json:"body"`
	}, error) {
		ctx = logging.WithContractID(ctx, input.ID)
		c, err := s.session(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		v, err := c.UploadVersion(ctx, input.Filename, input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UploadResponse `json:"body"`
		}{Body: UploadResponse{Version: v, Contract: contractView(c, versions.DefaultDisplayLimit)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List the caller's recent activity",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ContractID string `query:"contract_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"contract,version"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor" doc:"return events older than this id"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if input.Cursor < 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		// The log is shared by every user of this server; callers only see their own.
		actorID, apiErr := actorIDFromContext(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.RecentEvents(ctx, repo.EventFilters{
			ActorID:    actorID,
			ContractID: input.ContractID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Before:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = items[limit-1].ID
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

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	if !authCfg.AllowDevTokens || authCfg.JWTSecret == "" {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-token",
		Method:      http.MethodPost,
		Path:        "/auth/dev/token",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevTokenRequest
	}) (*struct {
		Body DevTokenResponse `json:"body"`
	}, error) {
		subject := strings.TrimSpace(input.Body.Subject)
		if subject == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subject is required", nil)
		}
		ttl := time.Duration(input.Body.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = time.Hour
		}
		token, err := auth.Sign(authCfg.JWTSecret, subject, ttl, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevTokenResponse `json:"body"`
		}{Body: DevTokenResponse{Token: token}}, nil
	})
}

func selectionResponse(c *engine.Contract) SelectionResponse {
	resp := SelectionResponse{}
	sel, ok := c.Selection()
	if !ok {
		return resp
	}
	resp.Selected = true
	resp.Selection = &sel
	a, _ := c.SelectedAnalysis()
	ar := analysisResponse(a)
	resp.Analysis = &ar
	return resp
}

func analysisResponse(a taskboard.Analysis) AnalysisResponse {
	resp := AnalysisResponse{
		VersionID: a.VersionID,
		Kind:      a.Kind,
		Label:     a.Label,
		Present:   a.Present,
		Status:    a.Status,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Err != nil {
		resp.Error = a.Err.Error()
		return resp
	}
	if a.Result != nil {
		v := taskboard.BuildView(a.Result)
		resp.View = &v
	}
	return resp
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
