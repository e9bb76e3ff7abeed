package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

type PageService interface {
	GetPage(ctx context.Context, address string, admin bool) (string, error)
}

type CounterService interface {
	GetCounters(ctx context.Context) ([]entity.DirCounters, error)
	GetDirCounters(ctx context.Context, path string) (*entity.DirCounters, error)
}

func NewPageHandler(srv PageService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		content, err := srv.GetPage(r.Context(), Address(r.Context()), IsAdmin(r.Context()))
		if err != nil {
			log.Error("Cannot get page", slog.Any("error", err))
			http.Error(w, "Cannot get page", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(content))
	}
}

// NewManageHandler applies the listing page form: every field is a directory id
// with its new mode. Fields that are not a valid id and mode are ignored.
func NewManageHandler(srv RegistryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ManageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		for key := range r.PostForm {
			id, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				continue
			}

			mode, err := strconv.Atoi(r.PostForm.Get(key))
			if err != nil {
				continue
			}

			if _, err := srv.SetMode(r.Context(), id, entity.ShareMode(mode)); err != nil {
				if statusFor(err) == http.StatusInternalServerError {
					log.Error("Cannot set mode", slog.Uint64("id", id), slog.Any("error", err))
					http.Error(w, "Cannot set mode", http.StatusInternalServerError)

					return
				}

				log.Debug("Skip mode change", slog.Uint64("id", id), slog.Any("error", err))
			}
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// NewCounterHandler serves all counters, or one directory's when the route has a path.
func NewCounterHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CounterHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")
		if path == "" {
			counters, err := srv.GetCounters(r.Context())
			if err != nil {
				log.Error("Cannot get counters", slog.Any("error", err))
				http.Error(w, "Cannot get counters", http.StatusInternalServerError)

				return
			}

			writeJSON(w, http.StatusOK, counters)

			return
		}

		counters, err := srv.GetDirCounters(r.Context(), path)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				http.Error(w, "Not found", http.StatusNotFound)
			} else {
				http.Error(w, "Cannot get counters", http.StatusInternalServerError)
			}

			return
		}

		writeJSON(w, http.StatusOK, counters)
	}
}
