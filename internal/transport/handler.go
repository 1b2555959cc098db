package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// multipart envelope allowance on top of the file size limit
const formOverhead = 1 << 20

type Conversions interface {
	Upload(ctx context.Context, ownerID string, file io.Reader, originalName, idempotencyKey string, size int64) (domain.Conversion, error)
	List(ctx context.Context, ownerID string) ([]domain.Conversion, error)
	Get(ctx context.Context, ownerID, id string) (domain.ConversionDetails, error)
	Preview(ctx context.Context, ownerID, id, pages string) (domain.FileResult, error)
	Download(ctx context.Context, ownerID, id string) (domain.FileResult, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type Accounts interface {
	Register(ctx context.Context, name, email, password string) (domain.AuthResult, error)
	Login(ctx context.Context, email, password string) (domain.AuthResult, error)
	User(ctx context.Context, id string) (domain.User, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type handler struct {
	maxUploadBytes int64
	conversions    Conversions
	accounts       Accounts
	health         HealthChecker
}

func NewHandler(maxUploadBytes int64, conversions Conversions, accounts Accounts, health HealthChecker) *handler {
	return &handler{
		maxUploadBytes: maxUploadBytes,
		conversions:    conversions,
		accounts:       accounts,
		health:         health,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "register")

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	logger.Info("user registered", slog.String("user_id", res.User.ID))
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "login")

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handler) currentUser(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "current_user")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	user, err := h.accounts.User(r.Context(), userID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "upload")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if isMaxBytes(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds "+sizeLabel(h.maxUploadBytes))
			return
		}
		logger.Warn("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "field `file` is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds "+sizeLabel(h.maxUploadBytes))
		return
	}

	logger = logger.With(slog.String("file_name", header.Filename), slog.String("user_id", userID))

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" {
		logger = logger.With(slog.String("idempotency_key", idempotencyKey))
	}

	c, err := h.conversions.Upload(r.Context(), userID, file, header.Filename, idempotencyKey, header.Size)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	logger.Info("conversion accepted", slog.String("job_id", c.ID))
	writeJSON(w, http.StatusAccepted, c)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "list")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	items, err := h.conversions.List(r.Context(), userID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "get")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	details, err := h.conversions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (h *handler) preview(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "preview")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	res, err := h.conversions.Preview(r.Context(), userID, chi.URLParam(r, "id"), r.URL.Query().Get("pages"))
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	sendFile(w, logger, "inline", res)
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "download")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	res, err := h.conversions.Download(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	sendFile(w, logger, "attachment", res)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "delete")

	userID, err := UserID(r.Context())
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if err := h.conversions.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// fail maps use case errors to responses. Anything unexpected is logged
// and answered with a generic 500.
func (h *handler) fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrConversionNotFound):
		writeError(w, http.StatusNotFound, "conversion not found")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "conversion belongs to another user")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrUserExists):
		writeError(w, http.StatusConflict, domain.ErrUserExists.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnsupportedFile):
		writeError(w, http.StatusUnsupportedMediaType, domain.ErrUnsupportedFile.Error())
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusTooEarly, "conversion is not finished yet")
	case errors.Is(err, domain.ErrConversionFailed):
		writeError(w, http.StatusConflict, domain.ErrConversionFailed.Error())
	case isMaxBytes(err):
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds "+sizeLabel(h.maxUploadBytes))
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
	}
}

func sendFile(w http.ResponseWriter, logger *slog.Logger, disposition string, res domain.FileResult) {
	defer res.Content.Close()

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType(disposition, map[string]string{"filename": res.FileName}))
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, res.Content); err != nil {
		logger.Error("send file", slog.String("error", err.Error()))
	}
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("handler", name),
	)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func sizeLabel(n int64) string {
	return strconv.FormatInt(n>>20, 10) + " MB"
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
