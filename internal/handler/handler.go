// Package handler содержит HTTP-обработчики API журнала лояльности клиники.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-ledger/internal/ledger"
	"github.com/mmeshcher/clinic-ledger/internal/model"
	"github.com/mmeshcher/clinic-ledger/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterPatient(ctx context.Context, name, mobile string) (*ledger.Result, error)
	ProcessTransaction(ctx context.Context, patientID string, amount float64, category model.Category, txType model.TransactionType) (*ledger.Result, error)
	LinkFamilyMember(ctx context.Context, headUserID, memberMobile string) (*ledger.Result, error)
	Snapshot(ctx context.Context) (model.Snapshot, error)
	DashboardStats(ctx context.Context) (model.DashboardStats, error)
	SearchPatients(ctx context.Context, query string) ([]model.User, error)
	FindByMobile(ctx context.Context, mobile string) (model.User, error)
	PatientOverview(ctx context.Context, userID string) (*model.PatientOverview, error)
	DailyActivity(ctx context.Context, userID string, days int) ([]model.DailyActivity, error)
}

// Handler реализует HTTP-обработчики API журнала.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

type registerResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type transactionRequest struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Type     string  `json:"type"`
}

type linkRequest struct {
	Mobile string `json:"mobile"`
}

type snapshotResponse struct {
	Message  string         `json:"message"`
	Snapshot model.Snapshot `json:"snapshot"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorStatus(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMobileExists), errors.Is(err, ledger.ErrAlreadyInFamily):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return http.StatusPaymentRequired
	case ledger.IsRejection(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError отдаёт текст бизнес-ошибки клиенту, а сбои инфраструктуры скрывает и логирует.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err))
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// RegisterPatient регистрирует нового пациента.
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	mobile := validation.NormalizeMobile(req.Mobile)
	if !validation.IsValidMobile(mobile) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid mobile number"})
		return
	}

	res, err := h.service.RegisterPatient(r.Context(), req.Name, mobile)
	if err != nil {
		h.writeError(w, "register patient", err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Message: res.Message, User: res.User})
}

// SearchPatients возвращает пациентов, подходящих под запрос q.
func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.SearchPatients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, "search patients", err)
		return
	}

	if len(users) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// FindByMobile возвращает пользователя по номеру телефона.
func (h *Handler) FindByMobile(w http.ResponseWriter, r *http.Request) {
	mobile := validation.NormalizeMobile(chi.URLParam(r, "mobile"))

	user, err := h.service.FindByMobile(r.Context(), mobile)
	if err != nil {
		h.writeError(w, "find by mobile", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// PatientOverview возвращает сводку по пациенту.
func (h *Handler) PatientOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.service.PatientOverview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "patient overview", err)
		return
	}

	writeJSON(w, http.StatusOK, ov)
}

// DailyActivity возвращает движение баллов пациента по дням.
func (h *Handler) DailyActivity(w http.ResponseWriter, r *http.Request) {
	days := ledger.DefaultActivityDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(w, "days must be a positive integer")
			return
		}
		days = n
	}

	activity, err := h.service.DailyActivity(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		h.writeError(w, "daily activity", err)
		return
	}

	writeJSON(w, http.StatusOK, activity)
}

// ProcessTransaction начисляет или списывает баллы пациента.
func (h *Handler) ProcessTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	res, err := h.service.ProcessTransaction(r.Context(), chi.URLParam(r, "id"), req.Amount,
		model.Category(req.Category), model.TransactionType(req.Type))
	if err != nil {
		h.writeError(w, "process transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{Message: res.Message, Snapshot: res.Snapshot})
}

// LinkFamilyMember присоединяет пациента с указанным номером к семье главы.
func (h *Handler) LinkFamilyMember(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	mobile := validation.NormalizeMobile(req.Mobile)
	if !validation.IsValidMobile(mobile) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid mobile number"})
		return
	}

	res, err := h.service.LinkFamilyMember(r.Context(), chi.URLParam(r, "headID"), mobile)
	if err != nil {
		h.writeError(w, "link family member", err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{Message: res.Message, Snapshot: res.Snapshot})
}

// Snapshot возвращает полное состояние журнала.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, "get snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// DashboardStats возвращает показатели панели клиники.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.writeError(w, "dashboard stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
