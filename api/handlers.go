package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
	"survey-dashboard/services"
	"survey-dashboard/storage"
	"survey-dashboard/utils"
)

const (
	MaxUploadSize = 10 << 20 // 10MB
	// AdminUser is recorded as author of admin writes; the static token
	// carries no identity of its own.
	AdminUser    = "admin"
	importSource = "csv_upload"
)

type Handler struct {
	Catalog    *catalog.Catalog
	Dashboard  *services.Dashboard
	Store      storage.ResponseStore
	Normalizer *services.Normalizer
	Aggregator *services.Aggregator
	CSV        storage.RecordExporter
	XLSX       storage.RecordExporter
	AdminToken string
	Logger     *utils.Logger
}

func NewHandler(cat *catalog.Catalog, dash *services.Dashboard, store storage.ResponseStore, adminToken string, logger *utils.Logger) *Handler {
	return &Handler{
		Catalog:    cat,
		Dashboard:  dash,
		Store:      store,
		Normalizer: services.NewNormalizer(cat, logger),
		Aggregator: services.NewAggregator(cat, logger),
		CSV:        storage.NewCSVExporter(cat),
		XLSX:       storage.NewXLSXExporter(cat),
		AdminToken: adminToken,
		Logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)

	// Public dashboard
	r.Get("/api/dashboard", h.GetDashboard)
	r.Get("/api/dashboard/map", h.GetMap)
	r.Get("/api/filters", h.GetFilters)
	r.Get("/api/boundary", h.GetBoundary)

	// Admin
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(h.AdminToken))

		r.Get("/api/survey-responses", h.ListResponses)
		r.Post("/api/survey-responses", h.CreateResponse)
		r.Put("/api/survey-responses/{id}", h.UpdateResponse)
		r.Delete("/api/survey-responses/{id}", h.DeleteResponse)

		r.Post("/api/import-csv", h.ImportCSV)
		r.Get("/api/export-csv", h.ExportCSV)
		r.Get("/api/export-xlsx", h.ExportXLSX)
		r.Get("/api/stats", h.GetStats)

		r.Get("/api/map-pins", h.GetMapPins)
		r.Post("/api/boundary", h.UploadBoundary)
		r.Delete("/api/boundary", h.DeleteBoundary)
	})
}

// ============================================================================
// Public
// ============================================================================

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Survey Dashboard API"})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// GetDashboard returns the aggregates for the filter selection in the query string.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.View(h.selection(r)))
}

// GetMap returns location stats and pin positions for the selection.
// Addresses and record ids are left out; admins read them from GetMapPins.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.MapView(h.selection(r)).Anonymous())
}

// GetMapPins is GetMap including the address text and record id of each pin.
func (h *Handler) GetMapPins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.MapView(h.selection(r)))
}

func (h *Handler) GetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.Options())
}

// selection reads one query parameter per filter dimension.
func (h *Handler) selection(r *http.Request) models.FilterSelection {
	q := r.URL.Query()
	sel := models.FilterSelection{}
	for _, d := range h.Catalog.Dimensions {
		if v := strings.TrimSpace(q.Get(d.Name)); v != "" {
			sel[d.Name] = v
		}
	}
	return sel
}

// ============================================================================
// Survey responses
// ============================================================================

func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.List(r.Context())
	if err != nil {
		h.serverError(w, "list responses", err)
		return
	}
	if rows == nil {
		rows = []*models.StoredResponse{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) CreateResponse(w http.ResponseWriter, r *http.Request) {
	answers, ok := h.decodeAnswers(w, r)
	if !ok {
		return
	}

	resp := &models.StoredResponse{Answers: answers, CreatedBy: AdminUser}
	if err := h.Store.Create(r.Context(), resp); err != nil {
		h.serverError(w, "create response", err)
		return
	}
	h.refresh(r)

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":      resp.ID,
		"message": "Survey response created successfully",
	})
}

func (h *Handler) UpdateResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	answers, ok := h.decodeAnswers(w, r)
	if !ok {
		return
	}

	err := h.Store.Update(r.Context(), id, answers, AdminUser)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Survey response not found")
		return
	}
	if err != nil {
		h.serverError(w, "update response", err)
		return
	}
	h.refresh(r)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Survey response updated successfully"})
}

func (h *Handler) DeleteResponse(w http.ResponseWriter, r *http.Request) {
	err := h.Store.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Survey response not found")
		return
	}
	if err != nil {
		h.serverError(w, "delete response", err)
		return
	}
	h.refresh(r)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Survey response deleted successfully"})
}

// decodeAnswers reads a JSON object in the API row shape and keeps the
// answers of known questionnaire fields.
func (h *Handler) decodeAnswers(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxUploadSize)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	rec := h.Normalizer.FromAPIRow(body)
	if len(rec.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "No known survey fields in request")
		return nil, false
	}
	return rec.Fields, true
}

// ============================================================================
// Import / export
// ============================================================================

// ImportCSV accepts a questionnaire export either as multipart field "file"
// or as the raw request body. Every row is stored, or none.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	payload, err := readUpload(w, r, csvUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !utf8.Valid(payload) {
		writeError(w, http.StatusBadRequest, "File must be UTF-8 encoded")
		return
	}

	records, err := h.Normalizer.Parse(bytes.NewReader(payload))
	if errors.Is(err, services.ErrUnknownLayout) {
		writeError(w, http.StatusBadRequest, "Not a survey export: no location or age column found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error importing CSV: %v", err))
		return
	}

	rows := make([]*models.StoredResponse, 0, len(records))
	for _, rec := range records {
		answers := make(map[string]string, len(rec.Fields))
		for k, v := range rec.Fields {
			if _, known := h.Catalog.Field(k); known {
				answers[k] = v
			}
		}
		rows = append(rows, &models.StoredResponse{Answers: answers, Source: importSource, CreatedBy: AdminUser})
	}

	n, err := h.Store.ImportMany(r.Context(), rows)
	if err != nil {
		h.serverError(w, "import csv", err)
		return
	}
	h.refresh(r)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  fmt.Sprintf("Successfully imported %d survey responses", n),
		"imported": n,
	})
}

// badRequest is an upload problem reported to the client verbatim.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// uploadKind names an accepted file type and its extensions.
type uploadKind struct {
	name       string
	extensions []string
}

var (
	csvUpload     = uploadKind{name: "CSV", extensions: []string{".csv"}}
	geoJSONUpload = uploadKind{name: "GeoJSON", extensions: []string{".geojson", ".json"}}
)

func (k uploadKind) accepts(filename string) bool {
	filename = strings.ToLower(filename)
	for _, ext := range k.extensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// readUpload returns multipart field "file" or, for other content types,
// the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request, kind uploadKind) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			return nil, badRequest("File too large or malformed form")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, badRequest("No file uploaded")
		}
		defer file.Close()
		if !kind.accepts(header.Filename) {
			return nil, badRequest("File must be a " + kind.name)
		}
		if data, err = io.ReadAll(file); err != nil {
			return nil, badRequest("Error reading uploaded file")
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return nil, badRequest("Error reading request body")
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, badRequest("Empty " + kind.name)
	}
	return data, nil
}

// ============================================================================
// District boundary
// ============================================================================

// GetBoundary returns the district outline as a GeoJSON FeatureCollection.
func (h *Handler) GetBoundary(w http.ResponseWriter, r *http.Request) {
	b := h.Dashboard.Boundary()
	if b == nil {
		writeError(w, http.StatusNotFound, "No district boundary configured")
		return
	}
	doc, err := b.MarshalJSON()
	if err != nil {
		h.serverError(w, "encode boundary", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(doc)
}

// UploadBoundary replaces the district outline with a GeoJSON polygon
// upload. UTM zone 33N coordinates are converted to WGS84.
func (h *Handler) UploadBoundary(w http.ResponseWriter, r *http.Request) {
	payload, err := readUpload(w, r, geoJSONUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := services.ParseBoundary(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error loading GeoJSON: %v", err))
		return
	}
	if err := h.Dashboard.SetBoundary(r.Context(), b); err != nil {
		h.serverError(w, "save boundary", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "District boundary loaded successfully",
		"name":     b.Name,
		"polygons": b.Polygons(),
	})
}

func (h *Handler) DeleteBoundary(w http.ResponseWriter, r *http.Request) {
	if err := h.Dashboard.SetBoundary(r.Context(), nil); err != nil {
		h.serverError(w, "delete boundary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "District boundary removed"})
}

// ExportCSV returns every stored response as semicolon-delimited text
// wrapped in JSON.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	records, ok := h.storedRecords(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.CSV.Export(&buf, records); err != nil {
		h.serverError(w, "export csv", err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=survey_export.csv")
	writeJSON(w, http.StatusOK, map[string]string{"csv_data": buf.String()})
}

func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	records, ok := h.storedRecords(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.XLSX.Export(&buf, records); err != nil {
		h.serverError(w, "export xlsx", err)
		return
	}
	w.Header().Set("Content-Type", h.XLSX.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=survey_export."+h.XLSX.Extension())
	w.Write(buf.Bytes())
}

// GetStats summarises stored responses by location and age group.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.List(r.Context())
	if err != nil {
		h.serverError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Aggregator.AdminStats(h.toRecords(rows)))
}

func (h *Handler) storedRecords(w http.ResponseWriter, r *http.Request) ([]models.SurveyRecord, bool) {
	rows, err := h.Store.List(r.Context())
	if err != nil {
		h.serverError(w, "list responses", err)
		return nil, false
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "No data to export")
		return nil, false
	}
	return h.toRecords(rows), true
}

func (h *Handler) toRecords(rows []*models.StoredResponse) []models.SurveyRecord {
	records := make([]models.SurveyRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, h.Normalizer.FromAnswers(row.ID, row.Answers))
	}
	return records
}

// refresh reloads the dashboard after a write. A failed reload is logged;
// the write itself already succeeded.
func (h *Handler) refresh(r *http.Request) {
	if err := h.Dashboard.Refresh(r.Context()); err != nil {
		h.Logger.Warn("[api] %v", err)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("[api] %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responds with {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
