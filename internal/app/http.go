package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medcatalog/api/internal/auth"
	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/metrics"
	"medcatalog/api/internal/util"
)

const (
	maxJSONBodyBytes   = 1 << 20
	multipartMemory    = 8 << 20
	maxBrowsePageSize  = 100
	readinessTimeout   = 5 * time.Second
	defaultSearchLimit = 20
)

type authenticator interface {
	Authenticate(header string) (auth.Principal, error)
}

type ServerOptions struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	// Auth resolves callers; nil acts as the local admin.
	Auth authenticator
	Log  *logger.Logger
}

type HTTPServer struct {
	service        *Service
	auth           authenticator
	corsOrigins    map[string]struct{}
	maxUploadBytes int64
	metrics        http.Handler
	log            *logger.Logger
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	origins := make(map[string]struct{}, len(opts.CORSOrigins))
	for _, origin := range opts.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPServer{
		service:        service,
		auth:           opts.Auth,
		corsOrigins:    origins,
		maxUploadBytes: maxUpload,
		metrics:        promhttp.Handler(),
		log:            log.With("component", "http"),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/health":
		if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case "/api/ready":
		if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		s.handleReady(w, r)
		return
	case "/metrics":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		s.metrics.ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.EscapedPath())
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}

	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	if parts[1] == "catalog" {
		if len(parts) == 3 && parts[2] == "search" {
			if allowMethod(w, r, http.MethodGet) {
				s.handleSearch(w, r, principal)
			}
			return
		}
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}

	if parts[1] == string(catalog.KindMachines) && len(parts) >= 3 {
		switch {
		case parts[2] == "descriptions" && len(parts) == 3:
			s.handleDescriptions(w, r, principal)
			return
		case parts[2] == "singledesc" && len(parts) == 4:
			if allowMethod(w, r, http.MethodGet) {
				s.handleSingleDescription(w, r, principal, parts[3])
			}
			return
		case parts[2] == "datasheet" && len(parts) == 4:
			if allowMethod(w, r, http.MethodGet) {
				s.handleDatasheet(w, r, principal, parts[3])
			}
			return
		case parts[2] == "orphans" && len(parts) == 3:
			if allowMethod(w, r, http.MethodGet, http.MethodDelete) {
				s.handleOrphans(w, r, principal)
			}
			return
		}
	}

	kind, err := catalog.ParseKind(parts[1])
	if err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}

	switch {
	case len(parts) == 2:
		if kind == catalog.KindMachines {
			if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
				return
			}
			if r.Method == http.MethodPost {
				s.handleCreateEntry(w, r, principal)
				return
			}
		} else if !allowMethod(w, r, http.MethodGet) {
			return
		}
		items, err := s.service.ListAssets(r.Context(), principal, kind)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case len(parts) == 3 && parts[2] == "browse":
		if allowMethod(w, r, http.MethodGet) {
			s.handleBrowse(w, r, principal, kind)
		}
	case len(parts) == 3 && parts[2] == "upload":
		if allowMethod(w, r, http.MethodPost) {
			s.handleUpload(w, r, principal, kind)
		}
	case len(parts) == 3 && parts[2] == "delete":
		if !allowMethod(w, r, http.MethodDelete) {
			return
		}
		if err := s.service.DeleteAsset(r.Context(), principal, kind, r.URL.Query().Get("fileName")); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "File deleted successfully"})
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			s.log.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = map[string]any{"status": "error"}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleBrowse(w http.ResponseWriter, r *http.Request, principal auth.Principal, kind catalog.Kind) {
	query := r.URL.Query()
	sortBy, err := catalog.ParseSortField(query.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "sort must be name or lastModified", nil)
		return
	}
	order, err := catalog.ParseSortOrder(query.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "order must be asc or desc", nil)
		return
	}
	page, err := intParam(query, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}
	pageSize, err := intParam(query, "pageSize", catalog.DefaultPageSize)
	if err != nil || pageSize < 1 || pageSize > maxBrowsePageSize {
		writeError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("pageSize must be between 1 and %d", maxBrowsePageSize), nil)
		return
	}

	result, err := s.service.Browse(r.Context(), principal, kind, catalog.Query{
		Text:     strings.TrimSpace(query.Get("q")),
		SortBy:   sortBy,
		Order:    order,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, principal auth.Principal, kind catalog.Kind) {
	upload, cleanup, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	asset, err := s.service.UploadAsset(r.Context(), principal, kind, upload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *HTTPServer) handleCreateEntry(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	upload, cleanup, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	features, err := decodeFeatures([]byte(r.FormValue("features")))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "features must be a list of rows or an object", nil)
		return
	}
	specs, err := decodeSpecs([]byte(r.FormValue("specifications")))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "specifications must be a list of rows or an object", nil)
		return
	}
	fields := catalog.Fields{
		Name:           r.FormValue("name"),
		Description:    r.FormValue("description"),
		Category:       r.FormValue("category"),
		Features:       features,
		Specifications: specs,
	}

	entry, err := s.service.CreateEntry(r.Context(), principal, upload, fields)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Machine added successfully",
		"id":      entry.ID,
		"entry":   entry,
	})
}

// readUpload parses the multipart body and opens its "file" part. On failure the
// response has already been written.
func (s *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request) (Upload, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Upload exceeds the size limit", map[string]any{"maxBytes": s.maxUploadBytes})
			return Upload{}, nil, false
		}
		writeError(w, http.StatusBadRequest, codeValidation, "Expected a multipart form", nil)
		return Upload{}, nil, false
	}
	removeForm := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		removeForm()
		writeError(w, http.StatusBadRequest, codeValidation, "No file uploaded", nil)
		return Upload{}, nil, false
	}
	upload := Upload{
		Filename:    header.Filename,
		Name:        r.FormValue("name"),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return upload, func() {
		_ = file.Close()
		removeForm()
	}, true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

type descriptionBody struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Features       json.RawMessage `json:"features"`
	Specifications json.RawMessage `json:"specifications"`
	URL            string          `json:"url"`
	Extension      string          `json:"extension"`
}

func (s *HTTPServer) handleDescriptions(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.service.ListEntries(r.Context(), principal)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"machines": entries})
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		var body descriptionBody
		if err := decodeBody(r, &body); err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body too large", nil)
				return
			}
			writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
			return
		}
		features, err := decodeFeatures(body.Features)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "features must be a list of rows or an object", nil)
			return
		}
		specs, err := decodeSpecs(body.Specifications)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "specifications must be a list of rows or an object", nil)
			return
		}
		entry, err := s.service.CreateDescription(r.Context(), principal, DescriptionInput{
			Fields: catalog.Fields{
				Name:           body.Name,
				Description:    body.Description,
				Category:       body.Category,
				Features:       features,
				Specifications: specs,
			},
			URL:       body.URL,
			Extension: body.Extension,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Machine added successfully",
			"id":      entry.ID,
			"slug":    entry.Slug,
		})
	case http.MethodDelete:
		deleted, err := s.service.DeleteEntry(r.Context(), principal, r.URL.Query().Get("slug"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Machine deleted successfully",
			"deleted": len(deleted),
		})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (s *HTTPServer) handleSingleDescription(w http.ResponseWriter, r *http.Request, principal auth.Principal, slug string) {
	entry, err := s.service.GetEntry(r.Context(), principal, slug)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entry})
}

func (s *HTTPServer) handleDatasheet(w http.ResponseWriter, r *http.Request, principal auth.Principal, slug string) {
	result, err := s.service.Datasheet(r.Context(), principal, slug, r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleOrphans(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	report, err := s.service.Reconcile(r.Context(), principal, r.Method == http.MethodDelete)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	query := r.URL.Query()
	limit, err := intParam(query, "limit", defaultSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}
	response, err := s.service.Search(r.Context(), principal, query.Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	if s.auth == nil {
		return auth.LocalPrincipal, true
	}
	principal, err := s.auth.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		s.log.Debug("request rejected", "request_id", requestIDFrom(r.Context()), "error", err)
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
		return auth.Principal{}, false
	}
	return principal, true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.setCORSHeaders(writer.Header(), r.Header.Get("Origin"))
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		metrics.RecordRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(writer.status), elapsed.Seconds())
		s.log.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// setCORSHeaders echoes origin only when it is on the allow-list.
func (s *HTTPServer) setCORSHeaders(header http.Header, origin string) {
	if _, ok := s.corsOrigins[origin]; ok && origin != "" {
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Add("Vary", "Origin")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Requested-With, Accept")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// routeLabel keeps slugs out of metric labels.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) == 4 && parts[0] == "api" && parts[1] == string(catalog.KindMachines) {
		switch parts[2] {
		case "singledesc", "datasheet":
			return "/api/machines/" + parts[2] + "/{slug}"
		}
	}
	if len(parts) > 3 {
		return "other"
	}
	return path
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	methodNotAllowed(w, methods...)
	return false
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if isTooLarge(err) {
			return err
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decodeFeatures accepts editor rows or an already normalized object.
func decodeFeatures(raw []byte) (catalog.Features, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return catalog.Features{}, nil
	}
	if raw[0] == '[' {
		var rows []catalog.FeatureRow
		if err := json.Unmarshal(raw, &rows); err == nil {
			return catalog.NormalizeFeatures(rows), nil
		}
	}
	var features catalog.Features
	if err := json.Unmarshal(raw, &features); err != nil {
		return catalog.Features{}, err
	}
	return features, nil
}

// decodeSpecs accepts editor rows or an already normalized tree.
func decodeSpecs(raw []byte) (catalog.Spec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return catalog.Spec{}, nil
	}
	if raw[0] == '[' {
		var rows []catalog.SpecRow
		if err := json.Unmarshal(raw, &rows); err == nil {
			return catalog.NormalizeSpecs(rows), nil
		}
	}
	var spec catalog.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return catalog.Spec{}, err
	}
	if spec.IsLeaf() {
		return catalog.Spec{}, fmt.Errorf("%w: specifications must be an object", catalog.ErrInvalidSpec)
	}
	return spec, nil
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return value, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) {
		return http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil
	}
	if isTooLarge(err) {
		return http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body too large", nil
	}
	return http.StatusInternalServerError, codeUpstream, "Server error", nil
}
