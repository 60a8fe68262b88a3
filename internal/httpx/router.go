package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/AngelCh415/auction-tracker/internal/export"
	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/report"
	"github.com/AngelCh415/auction-tracker/internal/telemetry"
	"github.com/AngelCh415/auction-tracker/internal/utils"
)

const uploadField = "files"

type handlers struct {
	log       *slog.Logger
	svc       *report.Service
	maxUpload int64
}

func NewRouter(log *slog.Logger, svc *report.Service, tel *telemetry.Metrics, maxUpload int64) http.Handler {
	h := &handlers{log: log, svc: svc, maxUpload: maxUpload}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(utils.Logger(log, tel))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Method(http.MethodGet, "/metrics", tel.Handler())

	mux.Route("/datasets", func(r chi.Router) {
		r.Post("/", h.upload)
		r.Get("/", h.datasets)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.dataset)
			r.Delete("/", h.deleteDataset)
			r.Get("/pivot", h.pivot)
			r.Get("/segments", h.segments)
			r.Get("/trend", h.trend)
			r.Get("/campaigns", h.campaigns)
			r.Get("/export.xlsx", h.export)
		})
	})
	return mux
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_REQUEST", "multipart upload required: "+err.Error()))
		return
	}
	fhs := r.MultipartForm.File[uploadField]
	if len(fhs) == 0 {
		writeError(w, r, newAPIError(http.StatusBadRequest, "MISSING_PARAMETER", fmt.Sprintf("no %q files uploaded", uploadField)))
		return
	}

	files := make([]ingest.File, 0, len(fhs))
	var unread []ingest.SourceError
	for _, fh := range fhs {
		b, err := readPart(fh)
		if err != nil {
			h.log.Warn("upload part unreadable", slog.String("file", fh.Filename), slog.String("err", err.Error()))
			unread = append(unread, ingest.SourceError{Source: fh.Filename, Err: err.Error()})
			continue
		}
		files = append(files, ingest.File{Name: fh.Filename, Data: b})
	}

	d, err := h.svc.Ingest(r.Context(), files)
	if errors.Is(err, ingest.ErrNoData) {
		e := toAPIError(err)
		e.Details = append(unread, d.Skipped...)
		writeError(w, r, e)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"dataset": d, "unread": unread})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *handlers) dataset(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dataset(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, d)
}

func (h *handlers) datasets(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.svc.Datasets())
}

func (h *handlers) deleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pivot(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Pivot(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, m.View())
}

func (h *handlers) segments(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Segments(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (h *handlers) trend(w http.ResponseWriter, r *http.Request) {
	days, err := h.svc.Trend(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, days)
}

func (h *handlers) campaigns(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.Campaigns(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ms)
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	book, err := h.svc.Workbook(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, book); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.DefaultFilename+`"`)
	w.Write(buf.Bytes())
}
