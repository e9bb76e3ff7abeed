package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/service/transfer"
	"github.com/spf13/afero"
)

const (
	formFieldLabel = "label"
	formFieldMode  = "mode"
	formFieldFiles = "files"
)

type RegistryService interface {
	Reconcile(ctx context.Context) (int, error)
	ListByMode(ctx context.Context, mode entity.ShareMode) ([]string, error)
	ListManaged(ctx context.Context) ([]*entity.Directory, error)
	SetMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error)
	Describe(ctx context.Context, path string) (*entity.Description, error)
}

type SessionService interface {
	Identify(ctx context.Context, address, label string) (*entity.Client, error)
	Resolve(ctx context.Context, address string) (*entity.Client, error)
	Touch(ctx context.Context, address string) error
	ListClients(ctx context.Context) ([]*entity.Client, error)
	Audit(ctx context.Context) ([]entity.AuditEntry, error)
	Sweep(ctx context.Context) (entity.SweepResult, error)
	ResetSession(ctx context.Context) (entity.ResetResult, error)
}

type TransferService interface {
	Download(ctx context.Context, address, path string, admin bool, serve transfer.ServeFunc) error
	Upload(ctx context.Context, address, path string, files []entity.UploadFile) (int, error)
}

type DirList struct {
	ReadOnly   []string            `json:"read_only"`
	UploadOnly []string            `json:"upload_only"`
	Managed    []*entity.Directory `json:"managed,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrNotADirectory):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidMode), errors.Is(err, common.ErrPathEscapesRoot),
		errors.Is(err, common.ErrLabelRequired), errors.Is(err, common.ErrInvalidLabel),
		errors.Is(err, common.ErrEmptyUpload):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrUnknownClient):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNameCollision), errors.Is(err, common.ErrReconcileInProgress):
		return http.StatusConflict
	case errors.Is(err, common.ErrTooManyFiles):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		http.Error(w, "Internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func NewListHandler(srv RegistryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var (
			list DirList
			err  error
		)

		if list.ReadOnly, err = srv.ListByMode(r.Context(), entity.ModeReadOnly); err == nil {
			list.UploadOnly, err = srv.ListByMode(r.Context(), entity.ModeUploadOnly)
		}
		if err == nil && IsAdmin(r.Context()) {
			list.Managed, err = srv.ListManaged(r.Context())
		}
		if err != nil {
			log.Error("Cannot list directories", slog.Any("error", err))
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, &list)
	}
}

func NewDescriptionHandler(srv RegistryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DescriptionHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")

		desc, err := srv.Describe(r.Context(), path)
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				log.Error("Cannot describe directory", slog.String("path", path), slog.Any("error", err))
			}
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, desc)
	}
}

func NewIdentifyHandler(srv SessionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "IdentifyHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		addr := Address(r.Context())

		client, err := srv.Identify(r.Context(), addr, r.FormValue(formFieldLabel))
		if err != nil {
			if errors.Is(err, common.ErrAlreadyIdentified) {
				http.Redirect(w, r, "/", http.StatusSeeOther)

				return
			}

			if statusFor(err) == http.StatusInternalServerError {
				log.Error("Cannot identify client", slog.String("address", addr), slog.Any("error", err))
			}
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusCreated, client)
	}
}

// downloadWriter tracks what ServeContent actually sent.
type downloadWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *downloadWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *downloadWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)

	return n, err
}

func (w *downloadWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func NewDownloadHandler(srv TransferService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")
		addr := Address(r.Context())
		started := false

		err := srv.Download(r.Context(), addr, path, IsAdmin(r.Context()), func(a *entity.Archive, f afero.File) (bool, error) {
			started = true

			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.SourcePath+".zip"))
			w.Header().Set("Content-Type", "application/zip")

			dw := &downloadWriter{ResponseWriter: w}
			http.ServeContent(dw, r, a.SourcePath+".zip", a.GeneratedAt, f)

			if err := r.Context().Err(); err != nil {
				return false, err
			}

			// Only a full GET body counts, HEAD, 304 and 206 do not.
			return r.Method == http.MethodGet && dw.status == http.StatusOK && dw.written == a.Size, nil
		})
		if err != nil {
			if started {
				log.Warn("Download aborted", slog.String("address", addr), slog.String("path", path), slog.Any("error", err))

				return
			}

			if statusFor(err) == http.StatusInternalServerError {
				log.Error("Cannot download", slog.String("address", addr), slog.String("path", path), slog.Any("error", err))
			}
			writeError(w, err)
		}
	}
}

func NewUploadHandler(maxMemory int64, srv TransferService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "UploadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")
		addr := Address(r.Context())

		if err := r.ParseMultipartForm(maxMemory); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		headers := r.MultipartForm.File[formFieldFiles]
		files := make([]entity.UploadFile, 0, len(headers))
		for _, fh := range headers {
			files = append(files, entity.UploadFile{
				Name: fh.Filename,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}

		n, err := srv.Upload(r.Context(), addr, path, files)
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				log.Error("Cannot upload", slog.String("address", addr), slog.String("path", path), slog.Any("error", err))
			}
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusCreated, map[string]int{"files": n})
	}
}

func NewSetModeHandler(srv RegistryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "SetModeHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		mode, err := strconv.Atoi(r.FormValue(formFieldMode))
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		dir, err := srv.SetMode(r.Context(), id, entity.ShareMode(mode))
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				log.Error("Cannot set mode", slog.Uint64("id", id), slog.Any("error", err))
			}
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, dir)
	}
}

func NewReconcileHandler(srv RegistryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ReconcileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		n, err := srv.Reconcile(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, common.ErrReconcileInProgress):
				http.Error(w, "Reconcile process has already started", http.StatusConflict)
			default:
				log.Error("Cannot reconcile", slog.Any("error", err))
				http.Error(w, "Cannot reconcile", http.StatusInternalServerError)
			}

			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
	}
}

func NewResetSessionHandler(srv SessionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ResetSessionHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		res, err := srv.ResetSession(r.Context())
		if err != nil {
			log.Error("Cannot reset session", slog.Any("error", err))
			http.Error(w, "Cannot reset session", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func NewSweepHandler(srv SessionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "SweepHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		res, err := srv.Sweep(r.Context())
		if err != nil {
			log.Error("Cannot sweep", slog.Any("error", err))
			http.Error(w, "Cannot sweep", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func NewClientsHandler(srv SessionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ClientsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := srv.ListClients(r.Context())
		if err != nil {
			log.Error("Cannot list clients", slog.Any("error", err))
			http.Error(w, "Cannot list clients", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, clients)
	}
}

func NewAuditHandler(srv SessionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "AuditHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := srv.Audit(r.Context())
		if err != nil {
			log.Error("Cannot get audit", slog.Any("error", err))
			http.Error(w, "Cannot get audit", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, entries)
	}
}
