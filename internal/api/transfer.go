package api

import (
	"fmt"
	"net/http"
	"os"
)

const maxUploadBytes = 200 << 20 // 200 MB

// TransferHandler serves database exports and accepts imports.
type TransferHandler struct {
	*Handler
}

// ExportDB handles GET /api/export-db.
//
//	@Summary		Download a snapshot of the database
//	@Tags			transfer
//	@Produce		application/x-sqlite3
//	@Success		200	{file}	binary
//	@Header			200	{string}	ETag	"SHA-256 of the snapshot"
//	@Security		BearerAuth
//	@Router			/export-db [get]
func (h *TransferHandler) ExportDB(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.ExportFile(r.Context())
	if err != nil {
		writeError(w, "export db", err)
		return
	}
	defer f.Close()

	file, err := os.Open(f.Path)
	if err != nil {
		writeError(w, "export db", err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.Name))
	w.Header().Set("ETag", `"`+f.Checksum+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, f.Name, f.ModTime, file)
}

// ImportDB handles POST /api/import-db (multipart/form-data, field "file").
//
//	@Summary		Replace all data with an uploaded SQLite database
//	@Tags			transfer
//	@Accept			multipart/form-data
//	@Produce		plain
//	@Param			file	formData	file	true	"SQLite database"
//	@Success		200		{string}	string	"Import summary"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import-db [post]
func (h *TransferHandler) ImportDB(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	res, err := h.svc.ImportReader(r.Context(), file)
	if err != nil {
		writeError(w, "import db", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Imported %s: %d habits, %d repetitions (%d dropped)\n",
		header.Filename, res.Habits, res.Repetitions, res.Dropped)
}
