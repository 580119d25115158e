package handlers

import (
	"io"
	"net/http"

	"github.com/pbeck/parley/internal/files"
	"github.com/pbeck/parley/internal/middleware"
)

const maxUploadBytes = 10 << 20

// FileHandler is phase one of attaching a file to a message: store the
// bytes, hand back a ref, and let the client reference it from postMessage.
// Orphans from an abandoned phase two are the file store sweep's problem.
type FileHandler struct {
	Files files.Store
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed upload", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "Missing file field", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed upload", nil)
		return
	}

	ref, err := h.Files.Put(data, header.Filename, middleware.UserID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	link, _ := h.Files.Resolve(ref)
	writeJSON(w, http.StatusCreated, "Stored file", envelope{"file_ref": ref, "file_link": link})
}
