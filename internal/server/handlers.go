package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dl-alexandre/gdrv-gateway/internal/listing"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/tunnel"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"github.com/dl-alexandre/gdrv-gateway/pkg/version"
	"github.com/go-chi/chi/v5"
)

func requestContext(r *http.Request, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		TraceID:         logging.TraceIDFromContext(r.Context()),
		RequestType:     requestType,
		InvolvedFileIDs: []string{},
	}
}

// parseListRequest reads listing parameters. Flags are true only for the
// literal "true".
func parseListRequest(r *http.Request) (listing.ListRequest, error) {
	q := r.URL.Query()
	req := listing.ListRequest{
		Folder:        chi.URLParam(r, "folderId"),
		Paginated:     q.Get("paginated") == "true",
		WithThumbnail: q.Get("withThumbnail") == "true",
		PageToken:     types.PageToken(q.Get("pageToken")),
	}
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return req, utils.InvalidArgument("pageSize must be a positive integer")
		}
		req.PageSize = n
	}
	return req, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	reqCtx := requestContext(r, types.RequestTypeList)
	req, err := parseListRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.lister.List(r.Context(), reqCtx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	reqCtx := requestContext(r, types.RequestTypeFetch)
	fileID := chi.URLParam(r, "fileId")
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	st, err := s.streamer.Open(r.Context(), reqCtx, fileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = st.Close() }()

	if st.ContentType != "" {
		w.Header().Set("Content-Type", st.ContentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")

	committed := false
	for {
		chunk, err := st.Next(r.Context())
		if err == io.EOF {
			if !committed {
				w.WriteHeader(http.StatusOK)
			}
			return
		}
		if err != nil {
			if !committed {
				w.Header().Del("Content-Type")
				s.writeError(w, r, err)
				return
			}
			s.logger.WithContext(r.Context()).Error("Aborting truncated response",
				logging.F("fileId", fileID),
				logging.F("bytes", st.Progress()),
				logging.F("error", err.Error()),
			)
			panic(http.ErrAbortHandler)
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := w.Write(chunk); err != nil {
			// client went away
			return
		}
		committed = true
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (s *Server) handleTunnel(w http.ResponseWriter, r *http.Request) {
	reqCtx := requestContext(r, types.RequestTypeTunnel)

	_, err := s.relayer.Relay(r.Context(), reqCtx, r.URL.Query().Get("url"), w)
	if err == nil {
		return
	}
	var relayErr *tunnel.RelayError
	if errors.As(err, &relayErr) {
		s.logger.WithContext(r.Context()).Warn("Tunnel relay interrupted",
			logging.F("bytes", relayErr.Written),
			logging.F("error", relayErr.Err.Error()),
		)
		panic(http.ErrAbortHandler)
	}
	s.writeError(w, r, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, version.Get())
}

type errorResponse struct {
	Error types.GatewayError `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.InternalError(err)
	}
	status := appErr.Status()
	gwErr := appErr.Err
	gwErr.HTTPStatus = status

	logger := s.logger.WithContext(r.Context())
	fields := []logging.Field{
		logging.F("path", r.URL.Path),
		logging.F("code", gwErr.Code),
		logging.F("status", status),
		logging.F("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Request failed", fields...)
	}

	s.writeJSON(w, r, status, errorResponse{Error: gwErr})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithContext(r.Context()).Warn("Failed to write response", logging.F("error", err.Error()))
	}
}
