package report_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-salesreport/internal/auth"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"
	"ms-salesreport/internal/reconciliation"
	"ms-salesreport/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxQuantity bounds the {ticket, quantity} purchase form.
const maxQuantity = 100

// Service is the set of engine operations exposed over HTTP.
type Service interface {
	StartReport(ctx context.Context, username string, timetable models.Timetable) (*models.Report, error)
	GetActiveReport(ctx context.Context) (*models.Report, error)
	GetReport(ctx context.Context, reportID int64) (*models.Report, error)
	PartialCloseReport(ctx context.Context, reportID, cash int64) (*models.Report, error)
	TotalCloseReport(ctx context.Context, reportID, cash int64) (*models.Report, error)
	GetLatestReportsByUser(ctx context.Context, username string, limit int) ([]models.Report, error)
	AddTickets(ctx context.Context, reportID int64, drafts []models.TicketDraft) (*reconciliation.PurchaseResult, error)
	NullifyTicket(ctx context.Context, ticketID, reportID int64) (*models.Ticket, error)
	ListTickets(ctx context.Context, reportID int64) ([]models.Ticket, error)
	IncrementCounter(ctx context.Context, key string, qty int64) (models.Count, error)
	GetCountersToday(ctx context.Context) ([]models.Count, error)
	WatchCounters(ctx context.Context) ([]models.Count, <-chan models.Count, error)
}

// Authenticator signs sellers in and verifies their session tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	Verify(raw string) (string, error)
}

type Handler struct {
	Service Service
	Auth    Authenticator
	Logger  *logger.Logger
	// Health is checked by /healthz; nil means always healthy.
	Health func(ctx context.Context) error
}

func NewHandler(service Service, authn Authenticator, log *logger.Logger, health func(ctx context.Context) error) *Handler {
	return &Handler{Service: service, Auth: authn, Logger: log, Health: health}
}

// Router builds the service's chi router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.Auth))
			h.RegisterRoutes(r)
		})
	})
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/", h.StartReport)
		r.Get("/active", h.GetActiveReport)
		r.Get("/latest", h.GetLatestReports)
		r.Route("/{reportID}", func(r chi.Router) {
			r.Get("/", h.GetReport)
			r.Post("/partial-close", h.PartialClose)
			r.Post("/close", h.TotalClose)
			r.Get("/tickets", h.ListTickets)
			r.Post("/tickets", h.AddTickets)
			r.Post("/tickets/{ticketID}/nullify", h.NullifyTicket)
		})
	})
	r.Route("/counters", func(r chi.Router) {
		r.Post("/increment", h.IncrementCounter)
		r.Get("/today", h.GetCountersToday)
		r.Get("/stream", h.StreamCounters)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// statusFor maps a taxonomy code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case models.ErrNotFound.Error():
		return http.StatusNotFound
	case models.ErrConflict.Error(),
		models.ErrInvalidState.Error(),
		models.ErrTicketAlreadyNullified.Error(),
		models.ErrTicketAlreadyClosed.Error():
		return http.StatusConflict
	case models.ErrTicketNotBelongToReport.Error():
		return http.StatusUnprocessableEntity
	case models.ErrUnauthorized.Error():
		return http.StatusUnauthorized
	case models.ErrForbidden.Error():
		return http.StatusForbidden
	case models.ErrValidation.Error():
		return http.StatusBadRequest
	case models.ErrStorageTimeout.Error():
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := models.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", err.Error())
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(err.Error(), code))
}

func (h *Handler) badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	h.fail(w, fmt.Errorf(format+": %w", append(args, models.ErrValidation)...))
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, models.ErrValidation)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q is not a positive integer: %w", name, raw, models.ErrValidation)
	}
	return id, nil
}

// requireOwner rejects changes to a report opened by another seller.
func (h *Handler) requireOwner(r *http.Request, reportID int64) error {
	report, err := h.Service.GetReport(r.Context(), reportID)
	if err != nil {
		return err
	}
	if caller := auth.Username(r.Context()); report.Username != caller {
		return fmt.Errorf("report #%d belongs to %s, not %s: %w", reportID, report.Username, caller, models.ErrForbidden)
	}
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.badRequest(w, "username and password are required")
		return
	}
	session, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("logged in", session))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse(err.Error(), models.ErrStorage.Error()))
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

// The report is opened for the authenticated seller.
type startReportRequest struct {
	Timetable models.Timetable `json:"timetable"`
}

func (h *Handler) StartReport(w http.ResponseWriter, r *http.Request) {
	var req startReportRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	report, err := h.Service.StartReport(r.Context(), auth.Username(r.Context()), req.Timetable)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("report started", report))
}

func (h *Handler) GetActiveReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.GetActiveReport(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("active report", report))
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r, "reportID")
	if err != nil {
		h.fail(w, err)
		return
	}
	report, err := h.Service.GetReport(r.Context(), reportID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("report", report))
}

type closeRequest struct {
	Cash *int64 `json:"cash"`
}

func (h *Handler) closeReport(w http.ResponseWriter, r *http.Request, partial bool) {
	reportID, err := pathID(r, "reportID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req closeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Cash == nil {
		h.badRequest(w, "cash is required")
		return
	}
	if err := h.requireOwner(r, reportID); err != nil {
		h.fail(w, err)
		return
	}

	var report *models.Report
	message := "report closed"
	if partial {
		report, err = h.Service.PartialCloseReport(r.Context(), reportID, *req.Cash)
		message = "report partially closed"
	} else {
		report, err = h.Service.TotalCloseReport(r.Context(), reportID, *req.Cash)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, report))
}

func (h *Handler) PartialClose(w http.ResponseWriter, r *http.Request) {
	h.closeReport(w, r, true)
}

func (h *Handler) TotalClose(w http.ResponseWriter, r *http.Request) {
	h.closeReport(w, r, false)
}

func (h *Handler) GetLatestReports(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = auth.Username(r.Context())
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(w, "limit %q is not a number", raw)
			return
		}
		limit = n
	}
	reports, err := h.Service.GetLatestReportsByUser(r.Context(), username, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("latest reports", reports))
}

// addTicketsRequest accepts either a list of tickets or one ticket repeated
// quantity times.
type addTicketsRequest struct {
	Tickets  []models.TicketDraft `json:"tickets"`
	Ticket   *models.TicketDraft  `json:"ticket"`
	Quantity int                  `json:"quantity"`
}

func (req addTicketsRequest) drafts() ([]models.TicketDraft, error) {
	switch {
	case len(req.Tickets) > 0 && req.Ticket != nil:
		return nil, fmt.Errorf("send either tickets or ticket, not both: %w", models.ErrValidation)
	case len(req.Tickets) > 0:
		return req.Tickets, nil
	case req.Ticket != nil:
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 1 || qty > maxQuantity {
			return nil, fmt.Errorf("quantity %d must be between 1 and %d: %w", req.Quantity, maxQuantity, models.ErrValidation)
		}
		out := make([]models.TicketDraft, qty)
		for i := range out {
			out[i] = *req.Ticket
		}
		return out, nil
	default:
		return nil, fmt.Errorf("purchase has no tickets: %w", models.ErrValidation)
	}
}

func (h *Handler) AddTickets(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r, "reportID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req addTicketsRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	drafts, err := req.drafts()
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.requireOwner(r, reportID); err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.Service.AddTickets(r.Context(), reportID, drafts)
	if err != nil {
		h.fail(w, err)
		return
	}
	message := fmt.Sprintf("%d tickets sold", len(result.Tickets))
	if result.CounterWarning != "" {
		message += "; live counters may be stale"
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(message, result))
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r, "reportID")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Service.ListTickets(r.Context(), reportID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tickets", list))
}

func (h *Handler) NullifyTicket(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r, "reportID")
	if err != nil {
		h.fail(w, err)
		return
	}
	ticketID, err := pathID(r, "ticketID")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.requireOwner(r, reportID); err != nil {
		h.fail(w, err)
		return
	}
	ticket, err := h.Service.NullifyTicket(r.Context(), ticketID, reportID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket nullified", ticket))
}

type incrementRequest struct {
	Key string `json:"key"`
	Qty int64  `json:"qty"`
}

func (h *Handler) IncrementCounter(w http.ResponseWriter, r *http.Request) {
	var req incrementRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	count, err := h.Service.IncrementCounter(r.Context(), req.Key, req.Qty)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("counter incremented", count))
}

func (h *Handler) GetCountersToday(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Service.GetCountersToday(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("counters", counts))
}
