package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// uploadField is the multipart field carrying menu images
const uploadField = "images"

// errUploadTooLarge is returned when the request exceeds maxUploadBytes
var errUploadTooLarge = errors.New("upload too large")

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSONError writes {"error": message} with the given status
func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleIndex renders the upload page with an empty table
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

// handleUploadPage processes the uploaded images and renders every record
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	images, err := s.readImages(w, r)
	if err != nil {
		s.renderPage(w, uploadErrorStatus(err), pageData{Error: uploadErrorMessage(err)})
		return
	}

	result, err := s.service.Process(r.Context(), images)
	if err != nil {
		slog.Error("Error processing menu upload", "images", len(images), "error", err)
		s.renderPage(w, http.StatusInternalServerError, pageData{
			Error: "The menu could not be saved. Please try again.",
		})
		return
	}

	page := pageData{Records: result.Records}
	if len(images) > 0 {
		page.Batch = &result.Batch
		page.Uploaded = true
	}
	s.renderPage(w, http.StatusOK, page)
}

// handleListRecords returns every stored record as JSON
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.List(r.Context())
	if err != nil {
		slog.Error("Error listing records", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUploadAPI is handleUploadPage for API clients
func (s *Server) handleUploadAPI(w http.ResponseWriter, r *http.Request) {
	images, err := s.readImages(w, r)
	if err != nil {
		writeJSONError(w, uploadErrorMessage(err), uploadErrorStatus(err))
		return
	}

	result, err := s.service.Process(r.Context(), images)
	if err != nil {
		slog.Error("Error processing menu upload", "images", len(images), "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// readImages reads every file part of the images field. A request that is
// not multipart carries no images.
func (s *Server) readImages(w http.ResponseWriter, r *http.Request) ([]Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errUploadTooLarge
		}
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	headers := r.MultipartForm.File[uploadField]
	images := make([]Image, 0, len(headers))
	for _, header := range headers {
		if header.Size == 0 {
			continue
		}
		data, err := readPart(header)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", header.Filename, err)
		}
		images = append(images, Image{
			Filename:    header.Filename,
			ContentType: detectContentType(header),
			Data:        data,
		})
	}
	return images, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// detectContentType prefers the declared part type and falls back on the
// file extension
func detectContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func uploadErrorStatus(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func uploadErrorMessage(err error) string {
	if errors.Is(err, errUploadTooLarge) {
		return "Upload is too large. Please send fewer or smaller images."
	}
	return "The upload could not be read. Please choose the images again."
}
