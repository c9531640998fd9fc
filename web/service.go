package web

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/export"
	"github.com/SanteonNL/bptrafficlight/importer"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/httpserv"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/lib/otel"
	"github.com/SanteonNL/bptrafficlight/threshold"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const basePath = "/api"

// multipartMemory is the part of a multipart upload kept in memory, the rest is spooled to disk.
const multipartMemory = 1 << 20

// Service exposes the application over a JSON HTTP API.
type Service struct {
	app         *app.Service
	importLimit int64
	strictMode  bool
	tracer      trace.Tracer
}

func New(service *app.Service, importLimit int64, strictMode bool) *Service {
	return &Service{
		app:         service,
		importLimit: importLimit,
		strictMode:  strictMode,
		tracer:      baseotel.Tracer("web"),
	}
}

type passwordRequest struct {
	Password string `json:"password"`
}

type lockResponse struct {
	Locked bool `json:"locked"`
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	route := func(method, path, operation string, handler http.HandlerFunc) httpserv.Route {
		return httpserv.Route{
			Method:     method,
			Path:       basePath + path,
			Handler:    handler,
			Middleware: httpserv.Chain(otel.HandlerWithTracing(s.tracer, "API/"+operation), withLogOperation(operation)),
		}
	}
	httpserv.RegisterRoutes(mux,
		route(http.MethodGet, "/dashboard", "GetDashboard", s.handleGetDashboard),
		route(http.MethodGet, "/status", "GetStatus", s.handleGetStatus),
		route(http.MethodGet, "/readings", "GetReadings", s.handleGetReadings),
		route(http.MethodPost, "/readings", "SubmitReading", s.handleSubmitReading),
		route(http.MethodPost, "/import", "ImportSmartwatch", s.handleImport),
		route(http.MethodGet, "/thresholds", "GetThresholds", s.handleGetThresholds),
		route(http.MethodPut, "/thresholds", "SaveThresholds", s.handleSaveThresholds),
		route(http.MethodPost, "/thresholds/reset", "ResetThresholds", s.handleResetThresholds),
		route(http.MethodPost, "/thresholds/lock", "LockThresholds", s.handleLockThresholds),
		route(http.MethodPost, "/thresholds/unlock", "UnlockThresholds", s.handleUnlockThresholds),
		route(http.MethodPost, "/connect/fhir", "ConnectFHIR", s.handleConnectFHIR),
		route(http.MethodPost, "/connect/demo", "UseDemoMode", s.handleUseDemoMode),
		route(http.MethodPost, "/sync", "Sync", s.handleSync),
		route(http.MethodGet, "/export", "Export", s.handleExport),
		route(http.MethodGet, "/export.xlsx", "ExportWorkbook", s.handleExportWorkbook),
	)
}

// withLogOperation adds the API operation to every log record written while handling the request.
func withLogOperation(operation string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
			ctx := logging.AppendCtx(httpRequest.Context(), slog.String(logging.FieldOperation, operation))
			next(httpResponse, httpRequest.WithContext(ctx))
		}
	}
}

func (s *Service) handleGetDashboard(httpResponse http.ResponseWriter, _ *http.Request) {
	sendResponse(httpResponse, http.StatusOK, s.app.Dashboard())
}

func (s *Service) handleGetStatus(httpResponse http.ResponseWriter, _ *http.Request) {
	sendResponse(httpResponse, http.StatusOK, s.app.Status())
}

func (s *Service) handleGetReadings(httpResponse http.ResponseWriter, _ *http.Request) {
	sendResponse(httpResponse, http.StatusOK, s.app.Readings())
}

func (s *Service) handleSubmitReading(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var input app.SubmitInput
	if err := decodeJSON(httpRequest, &input); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "SubmitReading")
		return
	}
	result, err := s.app.SubmitReading(httpRequest.Context(), input)
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "SubmitReading")
		return
	}
	sendResponse(httpResponse, http.StatusCreated, result)
}

// handleImport accepts the smartwatch export as multipart upload (field "file") or as raw JSON body.
func (s *Service) handleImport(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	ctx := httpRequest.Context()
	var body io.Reader = httpRequest.Body
	mediaType, _, _ := mime.ParseMediaType(httpRequest.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		// Allow some room for the multipart envelope, the file itself is limited by ReadAll
		httpRequest.Body = http.MaxBytesReader(httpResponse, httpRequest.Body, s.importLimit+multipartMemory)
		if err := httpRequest.ParseMultipartForm(multipartMemory); err != nil {
			var maxBytesError *http.MaxBytesError
			if errors.As(err, &maxBytesError) {
				err = importer.ErrTooLarge
			} else {
				err = coolfhir.BadRequest("invalid multipart upload: %w", err)
			}
			s.sendError(ctx, httpResponse, err, "ImportSmartwatch")
			return
		}
		file, _, err := httpRequest.FormFile("file")
		if err != nil {
			s.sendError(ctx, httpResponse, coolfhir.BadRequest("missing file: %w", err), "ImportSmartwatch")
			return
		}
		defer file.Close()
		body = file
	}
	raw, err := importer.ReadAll(ctx, body, s.importLimit)
	if err != nil {
		s.sendError(ctx, httpResponse, err, "ImportSmartwatch")
		return
	}
	result, err := s.app.ImportSmartwatch(ctx, raw)
	if err != nil {
		s.sendError(ctx, httpResponse, err, "ImportSmartwatch")
		return
	}
	sendResponse(httpResponse, http.StatusOK, result)
}

func (s *Service) handleGetThresholds(httpResponse http.ResponseWriter, _ *http.Request) {
	sendResponse(httpResponse, http.StatusOK, s.app.Thresholds())
}

func (s *Service) handleSaveThresholds(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var set threshold.Set
	if err := decodeJSON(httpRequest, &set); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "SaveThresholds")
		return
	}
	result, err := s.app.SaveThresholds(httpRequest.Context(), set)
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "SaveThresholds")
		return
	}
	sendResponse(httpResponse, http.StatusOK, result)
}

func (s *Service) handleResetThresholds(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	result, err := s.app.ResetThresholds(httpRequest.Context())
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "ResetThresholds")
		return
	}
	sendResponse(httpResponse, http.StatusOK, result)
}

func (s *Service) handleLockThresholds(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var request passwordRequest
	if err := decodeJSON(httpRequest, &request); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "LockThresholds")
		return
	}
	if err := s.app.LockThresholds(httpRequest.Context(), request.Password); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "LockThresholds")
		return
	}
	sendResponse(httpResponse, http.StatusOK, lockResponse{Locked: true})
}

func (s *Service) handleUnlockThresholds(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var request passwordRequest
	if err := decodeJSON(httpRequest, &request); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "UnlockThresholds")
		return
	}
	if err := s.app.UnlockThresholds(httpRequest.Context(), request.Password); err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "UnlockThresholds")
		return
	}
	sendResponse(httpResponse, http.StatusOK, lockResponse{Locked: false})
}

func (s *Service) handleConnectFHIR(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	status, err := s.app.ConnectFHIR(httpRequest.Context())
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "ConnectFHIR")
		return
	}
	sendResponse(httpResponse, http.StatusOK, status)
}

func (s *Service) handleUseDemoMode(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	sendResponse(httpResponse, http.StatusOK, s.app.UseDemoMode(httpRequest.Context()))
}

func (s *Service) handleSync(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	status, err := s.app.Sync(httpRequest.Context())
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "Sync")
		return
	}
	sendResponse(httpResponse, http.StatusOK, status)
}

func (s *Service) handleExport(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	document, err := s.app.Export(httpRequest.Context())
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "Export")
		return
	}
	sendResponse(httpResponse, http.StatusOK, document)
}

func (s *Service) handleExportWorkbook(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	report := s.app.Report()
	data, err := export.HistoryWorkbook(report)
	if err != nil {
		s.sendError(httpRequest.Context(), httpResponse, err, "ExportWorkbook")
		return
	}
	httpResponse.Header().Set("Content-Type", export.ContentType)
	httpResponse.Header().Set("Content-Disposition", "attachment; filename="+export.Filename(report.GeneratedAt))
	httpResponse.Header().Set("Content-Length", strconv.Itoa(len(data)))
	httpResponse.WriteHeader(http.StatusOK)
	_, _ = io.Copy(httpResponse, bytes.NewReader(data))
}
