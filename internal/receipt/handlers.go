package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/zombor/receiptly/internal/interpret"
	"github.com/zombor/receiptly/internal/llm"
	"github.com/zombor/receiptly/internal/scanning"
	"github.com/zombor/receiptly/internal/summary"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

var errUploadTooLarge = errors.New("file is too large, maximum size is 50MB")

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps service failures onto status codes
func writeError(w http.ResponseWriter, err error) {
	var malformed *interpret.MalformedResponseError
	var incomplete *interpret.IncompleteDataError

	switch {
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":       "Failed to parse LLM response",
			"details":     malformed.Err.Error(),
			"rawResponse": malformed.Raw,
		})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "LLM returned incomplete data",
			"missing": incomplete.Missing,
			"data":    incomplete.Candidate,
		})
	case errors.Is(err, interpret.ErrBadRequest),
		errors.Is(err, summary.ErrInvalidSummaryRequest),
		errors.Is(err, ErrInvalidDraft):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	case errors.Is(err, scanning.ErrNoText), errors.Is(err, scanning.ErrUnsupportedFormat):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, llm.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "Model service timed out"})
	case errors.Is(err, llm.ErrEmptyCompletion):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "No response from model service"})
	case errors.Is(err, llm.ErrRequestRejected):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Model service rejected the request"})
	case errors.Is(err, llm.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Model service unavailable"})
	default:
		slog.Error("Unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// decodeJSON reads a JSON request body into v
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", interpret.ErrBadRequest, err)
	}
	return nil
}

// readUpload pulls the "file" part out of a multipart request
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, "", fmt.Errorf("%w: %v", interpret.ErrBadRequest, errUploadTooLarge)
		}
		return "", nil, "", fmt.Errorf("%w: error parsing form", interpret.ErrBadRequest)
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, "", fmt.Errorf("%w: no file was selected, please choose a file to upload", interpret.ErrBadRequest)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, "", fmt.Errorf("reading upload: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromName(header.Filename)
	}
	return header.Filename, data, contentType, nil
}

func contentTypeFromName(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case "":
		return "application/octet-stream"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleOCR stores an upload and returns its text
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	filename, data, contentType, err := readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Scan(r.Context(), filename, data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type interpretRequest struct {
	OCRText string `json:"ocrText"`
}

func (s *Server) handleInterpretUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Receipt interpretation API is running",
		"method":  "POST",
		"expectedBody": map[string]string{
			"ocrText": "string - raw OCR text from receipt",
		},
	})
}

// handleInterpret turns OCR text into structured receipt data
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	data, err := s.service.Interpret(r.Context(), req.OCRText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

func (s *Server) handleSummarizeUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "AI Summary API is running",
		"method":  "POST",
		"expectedBody": map[string]string{
			"type":     "'single' | 'bulk'",
			"receipt":  "Receipt object (for single)",
			"receipts": "Receipt[] array (for bulk)",
		},
	})
}

// handleSummarize writes a narrative for caller-supplied receipts
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summary.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	text, err := s.service.Summarize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "summary": text})
}

// handleScanReceipt runs OCR and interpretation and returns a draft for review
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	filename, data, contentType, err := readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	draft, err := s.service.Process(r.Context(), filename, data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", filename, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleListReceipts returns receipts matching the query string
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	receipts, err := s.service.List(Filter{
		Query:         q.Get("query"),
		Category:      Category(q.Get("category")),
		FavoritesOnly: q.Get("favorites") == "true",
		PinnedOnly:    q.Get("pinned") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleCreateReceipt saves a reviewed draft
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.service.Create(r.Context(), &draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.ToggleFavorite(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleTogglePinned(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.TogglePinned(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.service.UpdateNotes(r.PathValue("id"), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRegenerateSummary(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.RegenerateSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// exportIDs reads ?ids=a,b,c
func exportIDs(r *http.Request) []string {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeDownload(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportCSV(exportIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, "text/csv; charset=utf-8", "receipts.csv", data)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX(exportIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "receipts.xlsx", data)
}

func (s *Server) handleExportReceiptCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.ExportCSV([]string{id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, "text/csv; charset=utf-8", fmt.Sprintf("receipt-%s.csv", id), data)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Analytics(s.service.timeSource.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.SummarizeHistory(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "summary": text})
}

// handleFile serves uploads kept in local storage
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	data, err := s.service.File(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := contentTypeFromName(path.Base(p))
	if contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
