package quotes

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdash/fleetdash/internal/documents"
	"github.com/fleetdash/fleetdash/internal/platform/httpx"
	"github.com/fleetdash/fleetdash/internal/shared"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

// Handler exposes the quote JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	maxUpload int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = documents.DefaultMaxBytes
	}
	return &Handler{logger: logger, service: service, maxUpload: maxUpload}
}

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/stages", h.stages)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/customer", h.setCustomer)
			r.Post("/parts", h.addPart)
			r.Patch("/parts/{index}/discount", h.updateDiscount)
			r.Post("/parts/{index}/accessories", h.addAccessory)
			r.Delete("/parts/{index}", h.removePart)
			r.Put("/trade-in", h.setTradeIn)
			r.Put("/bank-ref", h.setBankRef)
			r.Post("/send", h.send)
			r.Post("/approve", h.approve)
			r.Put("/status", h.setStatus)
			r.Put("/kanban", h.forceStatus)
			r.Post("/workflow", h.transition)
			r.Post("/documents", h.uploadDocument)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

// stages lists the fulfillment stage definitions for form rendering.
func (h *Handler) stages(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, workflow.Definitions())
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Get(r.Context(), id)
	h.respond(w, r, q, err)
}

func (h *Handler) setCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CustomerDetails
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.SetCustomer(r.Context(), id, req)
	h.respond(w, r, q, err)
}

func (h *Handler) addPart(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req AddPartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.AddPart(r.Context(), id, req)
	h.respond(w, r, q, err)
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	id, index, err := parseIDAndIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req DiscountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.UpdatePartDiscount(r.Context(), id, index, req)
	h.respond(w, r, q, err)
}

func (h *Handler) addAccessory(w http.ResponseWriter, r *http.Request) {
	id, index, err := parseIDAndIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req AddAccessoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.AddAccessory(r.Context(), id, index, req)
	h.respond(w, r, q, err)
}

func (h *Handler) removePart(w http.ResponseWriter, r *http.Request) {
	id, index, err := parseIDAndIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.RemovePart(r.Context(), id, index)
	h.respond(w, r, q, err)
}

func (h *Handler) setTradeIn(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var raw json.RawMessage
	if err := httpx.DecodeJSON(r, &raw); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.SetTradeIn(r.Context(), id, raw)
	h.respond(w, r, q, err)
}

func (h *Handler) setBankRef(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req BankRefRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.SetBankRef(r.Context(), id, req)
	h.respond(w, r, q, err)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Send(r.Context(), id)
	h.respond(w, r, q, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Approve(r.Context(), id)
	h.respond(w, r, q, err)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.SetStatus(r.Context(), id, req.Status)
	h.respond(w, r, q, err)
}

func (h *Handler) forceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.ForceStatus(r.Context(), id, req.Status)
	h.respond(w, r, q, err)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.ApplyTransition(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.fail(w, r, shared.NewValidationError("invalid multipart upload", "file"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, shared.NewValidationError("file is required", "file"))
		return
	}
	defer file.Close()

	meta := documents.Metadata{
		Stage:       r.FormValue("stage"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	if meta.ContentType == "application/octet-stream" {
		meta.ContentType = ""
	}
	url, err := h.service.UploadDocument(r.Context(), id, file, meta)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, DocumentResponse{URL: url})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, q *Quote, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Warn("quote request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("malformed quote id", "id")
	}
	return id, nil
}

func parseIDAndIndex(r *http.Request) (int64, int, error) {
	id, err := parseID(r)
	if err != nil {
		return 0, 0, err
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, 0, shared.NewValidationError("malformed part index", "index")
	}
	return id, index, nil
}
