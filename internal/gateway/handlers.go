package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloudbuckets/internal/buckets"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Request headers carrying PutFile options that have no standard header.
const (
	headerAccess       = "X-Buckets-Access"
	headerStorageClass = "X-Buckets-Storage-Class"
	headerRedirect     = "X-Buckets-Redirect"
	headerVersionID    = "X-Buckets-Version-Id"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Status string `json:"status"`
}

type createBucketRequest struct {
	Location string         `json:"location"`
	Access   buckets.Access `json:"access"`
}

type versioningBody struct {
	Enabled bool `json:"enabled"`
}

type encryptionRequest struct {
	Algorithm        string `json:"algorithm"`
	KeyID            string `json:"key_id"`
	DisableBucketKey bool   `json:"disable_bucket_key"`
}

func (s *Server) newHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/v1/health", s.handleHealth)
	r.Route("/v1/buckets", func(r chi.Router) {
		r.Get("/", s.handleListBuckets)
		r.Route("/{bucket}", func(r chi.Router) {
			r.Get("/", s.handleBucketExists)
			r.Get("/website", s.handleGetWebsite)
			r.Get("/website/domain", s.handleWebsiteDomain)
			r.Get("/policy", s.handleGetPolicy)
			r.Get("/versioning", s.handleGetVersioning)
			r.Get("/encryption", s.handleGetEncryption)
			r.Get("/files", s.handleListFiles)
			r.Get("/files/*", s.handleGetFile)
			r.Get("/metadata/*", s.handleFileMetadata)
			r.Get("/versions", s.handleListVersions)

			r.Group(func(r chi.Router) {
				r.Use(s.requireWriteAuth)
				r.Put("/", s.handleCreateBucket)
				r.Delete("/", s.handleDeleteBucket)
				r.Put("/website", s.handleSetWebsite)
				r.Put("/policy", s.handleSetPolicy)
				r.Delete("/policy", s.handleDeletePolicy)
				r.Put("/versioning", s.handleSetVersioning)
				r.Put("/encryption", s.handleSetEncryption)
				r.Delete("/encryption", s.handleDeleteEncryption)
				r.Put("/files/*", s.handlePutFile)
				r.Delete("/files/*", s.handleDeleteFile)
			})
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": s.provider.ID(),
	})
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	out, err := s.provider.ListBuckets(r.Context(), &opts)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req createBucketRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	opts := &buckets.CreateBucketOptions{Location: req.Location, Access: req.Access}
	if err := s.provider.CreateBucket(r.Context(), bucket, opts); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Bucket: bucket, Status: "created"})
}

func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if err := s.provider.DeleteBucket(r.Context(), bucket); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: "deleted"})
}

func (s *Server) handleBucketExists(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	ok, err := s.provider.BucketExists(r.Context(), bucket)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Bucket string `json:"bucket"`
		Exists bool   `json:"exists"`
	}{Bucket: bucket, Exists: ok})
}

func (s *Server) handleGetWebsite(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.provider.GetWebsiteConfiguration(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetWebsite(w http.ResponseWriter, r *http.Request) {
	var site buckets.BucketWebsiteConfiguration
	if err := decodeJSON(r, &site); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	cfg, err := s.provider.SetWebsiteConfiguration(r.Context(), chi.URLParam(r, "bucket"), site)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleWebsiteDomain(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	host, err := s.provider.GetWebsiteDomain(r.Context(), bucket)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Bucket string `json:"bucket"`
		Domain string `json:"domain"`
	}{Bucket: bucket, Domain: host})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.provider.GetPolicy(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var policy buckets.Policy
	if err := decodeJSON(r, &policy); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	if err := s.provider.SetPolicy(r.Context(), bucket, policy); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: "policy updated"})
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if err := s.provider.DeletePolicy(r.Context(), bucket); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: "policy deleted"})
}

func (s *Server) handleGetVersioning(w http.ResponseWriter, r *http.Request) {
	on, err := s.provider.GetVersioning(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versioningBody{Enabled: on})
}

func (s *Server) handleSetVersioning(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req versioningBody
	if err := decodeJSON(r, &req); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	if err := s.provider.SetVersioning(r.Context(), bucket, req.Enabled); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	status := "versioning suspended"
	if req.Enabled {
		status = "versioning enabled"
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: status})
}

func (s *Server) handleGetEncryption(w http.ResponseWriter, r *http.Request) {
	settings, err := s.provider.GetEncryption(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSetEncryption(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req encryptionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	opts := &buckets.SetEncryptionOptions{Algorithm: req.Algorithm, KeyID: req.KeyID}
	if req.DisableBucketKey {
		opts.ProviderOptions = map[string]any{buckets.ProviderOptionDisableBucketKey: true}
	}
	if err := s.provider.SetEncryption(r.Context(), bucket, true, opts); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: "encryption enabled"})
}

func (s *Server) handleDeleteEncryption(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if err := s.provider.SetEncryption(r.Context(), bucket, false, nil); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Status: "encryption disabled"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := listOptions(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	q := r.URL.Query()
	opts := &buckets.ListFilesOptions{ListOptions: list, Folder: q.Get("folder")}
	if raw := q.Get("recursive"); raw != "" {
		opts.Recursive, err = strconv.ParseBool(raw)
		if err != nil {
			s.writeProviderError(w, r, &buckets.ConfigError{Field: "recursive", Value: raw, Message: "must be true or false"})
			return
		}
	}
	out, err := s.provider.ListFiles(r.Context(), chi.URLParam(r, "bucket"), opts)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	out, err := s.provider.ListFileVersions(r.Context(), chi.URLParam(r, "bucket"), r.URL.Query().Get("path"), &opts)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := fileKey(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	version := r.URL.Query().Get("version")

	rc, err := s.provider.GetFileStream(r.Context(), bucket, key, &buckets.GetFileOptions{VersionID: version})
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	if version == "" {
		// Headers describe the current version only. The lookup is separate
		// from the open stream, so the body length is left to net/http.
		if md, err := s.provider.GetFileMetadata(r.Context(), bucket, key); err == nil && md != nil {
			setMetadataHeaders(h, md)
		}
	} else {
		h.Set(headerVersionID, version)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn().Err(err).Str("bucket", bucket).Str("key", key).Msg("stream file")
	}
}

func (s *Server) handleFileMetadata(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := fileKey(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	md, err := s.provider.GetFileMetadata(r.Context(), bucket, key)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	if md == nil {
		writeError(w, http.StatusNotFound, "NoSuchKey", fmt.Sprintf("%s/%s does not exist", bucket, key))
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := fileKey(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	opts, err := putOptions(r.Header)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := s.provider.PutFile(r.Context(), bucket, key, body, opts); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Bucket: bucket, Key: key, Status: "uploaded"})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := fileKey(r)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	if err := s.provider.DeleteFile(r.Context(), bucket, key); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Bucket: bucket, Key: key, Status: "deleted"})
}

// fileKey returns the object key matched by the trailing wildcard. The
// router matches on the raw path when the request carries one, in which
// case the key is still escaped.
func fileKey(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			return "", &buckets.ConfigError{Field: "path", Value: key, Message: "invalid escape sequence"}
		}
		key = unescaped
	}
	if key == "" {
		return "", &buckets.ConfigError{Field: "path", Message: "file path is required"}
	}
	return key, nil
}

func listOptions(r *http.Request) (buckets.ListOptions, error) {
	q := r.URL.Query()
	opts := buckets.ListOptions{Offset: q.Get("offset")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return opts, &buckets.ConfigError{Field: "limit", Value: raw, Message: "must be a non-negative integer"}
		}
		opts.Limit = limit
	}
	return opts, nil
}

func putOptions(h http.Header) (*buckets.PutFileOptions, error) {
	opts := &buckets.PutFileOptions{
		ContentType:     h.Get("Content-Type"),
		ContentEncoding: h.Get("Content-Encoding"),
		Access:          buckets.Access(h.Get(headerAccess)),
		StorageClass:    h.Get(headerStorageClass),
		Redirect:        h.Get(headerRedirect),
	}
	if raw := h.Get("Expires"); raw != "" {
		t, err := http.ParseTime(raw)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return nil, &buckets.ConfigError{Field: "expires", Value: raw, Message: "must be an HTTP date or RFC3339 timestamp"}
		}
		opts.Expires = t
	}
	return opts, nil
}

func setMetadataHeaders(h http.Header, md *buckets.BucketFileMetadata) {
	if md.ContentType != "" {
		h.Set("Content-Type", md.ContentType)
	}
	if md.ContentEncoding != "" {
		h.Set("Content-Encoding", md.ContentEncoding)
	}
	if md.ETag != "" {
		h.Set("ETag", `"`+strings.Trim(md.ETag, `"`)+`"`)
	}
	if !md.LastModified.IsZero() {
		h.Set("Last-Modified", md.LastModified.UTC().Format(http.TimeFormat))
	}
	if !md.Expires.IsZero() {
		h.Set("Expires", md.Expires.UTC().Format(http.TimeFormat))
	}
	if md.StorageClass != "" {
		h.Set(headerStorageClass, md.StorageClass)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &buckets.ConfigError{Field: "body", Message: "decode request body: " + err.Error()}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for requests whose body may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &buckets.ConfigError{Field: "body", Message: "decode request body: " + err.Error()}
}

func (s *Server) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, err.Error())
}

// errorStatus maps the buckets error taxonomy onto an HTTP status and a
// response code.
func errorStatus(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request_too_large"
	case buckets.IsConfigError(err):
		return http.StatusBadRequest, buckets.CodeInvalidRequest
	case buckets.IsUnsupported(err):
		return http.StatusNotImplemented, buckets.CodeNotImplemented
	case buckets.IsTimeout(err):
		return http.StatusGatewayTimeout, buckets.CodeTimeout
	}

	pe, ok := buckets.AsProviderError(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	code := pe.Code
	if code == "" {
		code = "provider_error"
	}
	switch {
	case pe.NotFound():
		return http.StatusNotFound, code
	case pe.Code == buckets.CodeStreamReadError:
		return http.StatusBadRequest, code
	case pe.StatusCode >= 400 && pe.StatusCode < 500:
		return pe.StatusCode, code
	default:
		return http.StatusBadGateway, code
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
