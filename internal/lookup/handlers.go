package lookup

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// maxUploadSize bounds label photo uploads
const maxUploadSize = int64(20 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeOutcome maps service errors onto the response envelope
func writeOutcome(w http.ResponseWriter, err error) {
	var limit *nutrition.LimitReached
	switch {
	case errors.As(err, &limit):
		writeJSON(w, http.StatusTooManyRequests, nutrition.Response{
			Status: nutrition.StatusLimitReached,
			Limit:  limit.Limit,
			Used:   limit.Used,
		})
	case errors.Is(err, nutrition.ErrNotFound):
		writeJSON(w, http.StatusOK, nutrition.Response{Status: nutrition.StatusNotFound})
	default:
		writeJSON(w, http.StatusBadGateway, nutrition.Response{
			Status: nutrition.StatusError,
			Error:  err.Error(),
		})
	}
}

// handleLookup resolves a code through the catalog and public database
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req nutrition.LookupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nutrition.Response{Status: nutrition.StatusError, Error: "Invalid request body"})
		return
	}

	code, err := nutrition.NormalizeCode(string(req.Code))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, nutrition.Response{Status: nutrition.StatusError, Error: err.Error()})
		return
	}

	product, err := s.service.Lookup(r.Context(), code, req.UserID)
	if err != nil {
		if !errors.Is(err, nutrition.ErrNotFound) {
			slog.Error("Error looking up code", "code", code, "error", err)
		}
		writeOutcome(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nutrition.Response{Status: nutrition.StatusFound, Product: product})
}

// handleAnalyze runs label analysis on an uploaded photo
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "Image is too large. Maximum size is 20MB."
		}
		writeJSON(w, http.StatusBadRequest, nutrition.Response{Status: nutrition.StatusError, Error: errorMsg})
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		slog.Error("Error getting image from form", "error", err)
		writeJSON(w, http.StatusBadRequest, nutrition.Response{Status: nutrition.StatusError, Error: "No image provided"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading image data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, nutrition.Response{Status: nutrition.StatusError, Error: "Error reading image"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromName(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	var code nutrition.Code
	if raw := strings.TrimSpace(r.FormValue("code")); raw != "" {
		code = nutrition.Code(raw)
	}

	product, err := s.service.Analyze(r.Context(), data, contentType, code, r.FormValue("user_id"))
	if err != nil {
		slog.Error("Error analyzing label", "filename", header.Filename, "error", err)
		writeOutcome(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nutrition.Response{Status: nutrition.StatusOK, Product: product})
}

// handleSaveProduct writes a confirmed product into the catalog
func (s *Server) handleSaveProduct(w http.ResponseWriter, r *http.Request) {
	var product nutrition.Product
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&product); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stored, err := s.service.SaveProduct(&product)
	if err != nil {
		if errors.Is(err, ErrInvalidProduct) {
			corsError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error saving product", "code", product.Code, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

// handleGetProduct returns a single catalog product
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	code := nutrition.Code(r.PathValue("code"))
	if code == "" {
		corsError(w, "Product code required", http.StatusBadRequest)
		return
	}
	product, err := s.service.GetProduct(code)
	if err != nil {
		if errors.Is(err, nutrition.ErrNotFound) {
			corsError(w, "Product not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting product", "code", code, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// handleListProducts returns every catalog product
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.service.ListProducts()
	if err != nil {
		slog.Error("Error listing products", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// handleGetImage returns a stored label image
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		corsError(w, "Image name required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetImage(name)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUsage returns today's quota usage for a user
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.service.Usage(r.URL.Query().Get("user_id"))
	if err != nil {
		slog.Error("Error reading usage", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

func contentTypeFromName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
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
