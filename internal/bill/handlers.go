package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSONError writes a JSON error body with CORS headers set
func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleScanReceipt accepts a receipt upload, runs OCR and field extraction,
// and returns the pre-filled draft
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeJSONError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeJSONError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeJSONError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	draft, err := s.service.ScanReceipt(header.Filename, data, contentType)
	if err != nil {
		if errors.Is(err, ErrScanInFlight) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(draft); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleCreateDraft creates a draft from manual entry
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var fields DraftFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !fields.Category.Valid() || !fields.Type.Valid() {
		writeJSONError(w, "Invalid category or type", http.StatusBadRequest)
		return
	}

	draft, err := s.service.CreateDraft(fields)
	if err != nil {
		slog.Error("Error creating draft", "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(draft); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListDrafts returns a list of all drafts
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.service.ListDrafts()
	if err != nil {
		slog.Error("Error listing drafts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if drafts == nil {
		drafts = []*Draft{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(drafts); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetDraft returns a single draft
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Draft ID required", http.StatusBadRequest)
		return
	}
	draft, err := s.service.GetDraft(id)
	if err != nil {
		corsError(w, "Draft not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(draft); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUpdateDraft replaces a draft's editable fields
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Draft ID required", http.StatusBadRequest)
		return
	}

	var fields DraftFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !fields.Category.Valid() || !fields.Type.Valid() {
		writeJSONError(w, "Invalid category or type", http.StatusBadRequest)
		return
	}

	draft, err := s.service.UpdateDraft(id, fields)
	if err != nil {
		corsError(w, "Draft not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(draft); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDeleteDraft deletes a draft
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Draft ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteDraft(id); err != nil {
		corsError(w, "Error deleting draft", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetDraftFile returns the receipt image for a draft
func (s *Server) handleGetDraftFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Draft ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetDraftFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSubmitDraft submits a draft to the backend. Validation failures keep
// the draft; only a 2xx from the backend consumes it.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Draft ID required", http.StatusBadRequest)
		return
	}

	var req struct {
		UserID int `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.service.SubmitDraft(r.Context(), id, req.UserID)
	if err != nil {
		var amountErr *AmountParseError
		switch {
		case errors.Is(err, ErrSubmitInFlight):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrNotFound):
			corsError(w, "Draft not found", http.StatusNotFound)
		case errors.As(err, &amountErr):
			writeJSONError(w, amountErr.Error(), http.StatusUnprocessableEntity)
		default:
			slog.Error("Error submitting draft", "id", id, "error", err)
			writeJSONError(w, "Submission failed. Please try again.", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(created); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}
