package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/service"
)

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	collectionID, err := pathUUID(r, "collectionID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	fileName, contentType, data, err := readUpload(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	doc, err := s.documents.Upload(r.Context(), collectionID, fileName, contentType, data)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	// Accepted, not created: indexing finishes in the background and
	// the document stays in processing state until it does.
	respond(w, http.StatusAccepted, toDocumentView(doc))
}

// readUpload accepts either a multipart form with a "file" field or a
// raw body whose Content-Type names the document format.
func readUpload(r *http.Request) (fileName, contentType string, data []byte, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			return "", "", nil, errdefs.Wrap(ferr, errdefs.InvalidArgument, errdefs.CodeInvalidRequest,
				`multipart upload requires a "file" field`)
		}
		defer file.Close()

		data, err = io.ReadAll(io.LimitReader(file, service.MaxUploadBytes+1))
		if err != nil {
			return "", "", nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to read upload")
		}
		return header.Filename, header.Header.Get("Content-Type"), data, nil
	}

	data, err = io.ReadAll(io.LimitReader(r.Body, service.MaxUploadBytes+1))
	if err != nil {
		return "", "", nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to read upload")
	}
	return r.Header.Get("X-File-Name"), r.Header.Get("Content-Type"), data, nil
}

type documentListResponse struct {
	Documents []documentView `json:"documents"`
	Total     int            `json:"total"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	collectionID, err := pathUUID(r, "collectionID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	limit, offset := pageParams(r)
	status := r.URL.Query().Get("status")

	docs, total, err := s.documents.List(r.Context(), collectionID, status, limit, offset)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, documentListResponse{
		Documents: toDocumentViews(docs),
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "documentID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, toDocumentView(doc))
}

func (s *Server) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "documentID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	chunks, err := s.documents.Chunks(r.Context(), id, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{"chunks": toChunkViews(chunks)})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "documentID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	if err := s.documents.Delete(r.Context(), id); err != nil {
		respondError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
