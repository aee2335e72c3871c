package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	// HeaderActor identifies the caller recorded on ledger rows and audit logs.
	HeaderActor = "X-Actor-ID"
	// HeaderIdempotencyKey lets clients retry postings safely.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// AuditTrail reads audit history for an entity.
type AuditTrail interface {
	ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     AuditTrail
	validator *validator.Validate
	reports   singleflight.Group
}

// NewHandler constructs the inventory handler. audit may be nil.
func NewHandler(logger *slog.Logger, service *Service, audit AuditTrail) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: audit, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Post("/", h.createItem)
		r.Get("/{id}", h.getItem)
		r.Put("/{id}", h.updateItem)
		r.Post("/{id}/deactivate", h.deactivateItem)
		r.Post("/{id}/recalculate-cost", h.recalculateCost)
		r.Get("/{id}/stock", h.itemStock)
		r.Get("/{id}/audit", h.auditTrail("item"))
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.listWarehouses)
		r.Post("/", h.createWarehouse)
		r.Get("/{id}", h.getWarehouse)
		r.Post("/{id}/deactivate", h.deactivateWarehouse)
		r.Get("/{id}/stock", h.warehouseStock)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/receipts", h.post(TransactionTypeReceipt))
		r.Post("/issues", h.post(TransactionTypeIssue))
		r.Post("/transfers", h.post(TransactionTypeTransfer))
		r.Post("/adjustments", h.post(TransactionTypeAdjustment))
		r.Post("/waste", h.post(TransactionTypeWaste))
	})
	r.Route("/reports", func(r chi.Router) {
		r.Get("/low-stock", h.lowStock)
		r.Get("/valuation", h.valuation)
		r.Get("/jobs/{jobID}/materials", h.jobMaterials)
		r.Get("/waste", h.wasteReport)
	})
	r.Route("/requisitions", func(r chi.Router) {
		r.Get("/", h.listRequisitions)
		r.Post("/", h.createRequisition)
		r.Get("/{id}", h.getRequisition)
		r.Get("/{id}/fills", h.listFills)
		r.Post("/{id}/submit", h.requisitionTransition(h.service.SubmitRequisition))
		r.Post("/{id}/approve", h.requisitionTransition(h.service.ApproveRequisition))
		r.Post("/{id}/cancel", h.requisitionTransition(h.service.CancelRequisition))
		r.Post("/{id}/fill", h.fillRequisition)
		r.Get("/{id}/audit", h.auditTrail("requisition"))
	})
	r.Route("/counts", func(r chi.Router) {
		r.Get("/", h.listCounts)
		r.Post("/", h.createCount)
		r.Get("/{id}", h.getCount)
		r.Put("/{id}", h.updateCountLine)
		r.Post("/{id}/complete", h.countTransition(h.service.CompleteCount))
		r.Post("/{id}/post", h.countTransition(h.service.PostCount))
		r.Get("/{id}/audit", h.auditTrail("count"))
	})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), activeOnly(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), req.toInput(actor(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), req.toInput(actor(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.DeactivateItem(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) recalculateCost(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.RecalculateCost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) itemStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	warehouseID := r.URL.Query().Get("warehouse_id")
	qty, err := h.service.StockLevel(r.Context(), itemID, warehouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ItemID: itemID, WarehouseID: warehouseID, Quantity: qty})
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context(), activeOnly(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), WarehouseInput{
		Name:    strings.TrimSpace(req.Name),
		Type:    WarehouseType(req.Type),
		JobID:   req.JobID,
		ActorID: actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.service.GetWarehouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) deactivateWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.service.DeactivateWarehouse(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) warehouseStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.StockByWarehouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransactionFilter{
		ItemID:      q.Get("item_id"),
		WarehouseID: q.Get("warehouse_id"),
		JobID:       q.Get("job_id"),
	}
	for _, raw := range q["type"] {
		t := TransactionType(raw)
		if !t.Valid() {
			h.fail(w, r, invalid("unknown transaction type %q", raw))
			return
		}
		filter.Types = append(filter.Types, t)
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 0 {
			h.fail(w, r, invalid("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	txns, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) post(txType TransactionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postingRequest
		if !h.decode(w, r, &req) {
			return
		}
		who, key := actor(r), strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		var (
			txn Transaction
			err error
		)
		switch txType {
		case TransactionTypeReceipt:
			if req.UnitCost == nil {
				h.fail(w, r, fmt.Errorf("%w: unit cost is required for receipts", ErrValidation))
				return
			}
			txn, err = h.service.Receive(r.Context(), req.receipt(who, key))
		case TransactionTypeIssue:
			txn, err = h.service.Issue(r.Context(), req.issue(who, key))
		case TransactionTypeTransfer:
			txn, err = h.service.Transfer(r.Context(), req.transfer(who, key))
		case TransactionTypeAdjustment:
			txn, err = h.service.Adjust(r.Context(), req.adjustment(who, key))
		case TransactionTypeWaste:
			txn, err = h.service.RecordWaste(r.Context(), req.waste(who, key))
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, txn)
	}
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStockItems(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	method := ValuationMethod(strings.ToLower(r.URL.Query().Get("method")))
	if method == "" {
		method = ValuationAverage
	}
	if !method.Valid() {
		h.fail(w, r, invalid("unknown valuation method %q", method))
		return
	}
	ctx := r.Context()
	ch := h.reports.DoChan("valuation:"+string(method), func() (interface{}, error) {
		return h.service.Valuation(context.WithoutCancel(ctx), method)
	})
	select {
	case <-ctx.Done():
		h.fail(w, r, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			h.fail(w, r, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val)
	}
}

func (h *Handler) jobMaterials(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.JobMaterialSummary(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) wasteReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := WasteFilter{WarehouseID: q.Get("warehouse_id"), JobID: q.Get("job_id"), ItemID: q.Get("item_id")}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.service.WasteReport(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := h.service.ListRequisitions(r.Context(), RequisitionFilter{
		JobID:  q.Get("job_id"),
		ItemID: q.Get("item_id"),
		Status: RequisitionStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	neededBy, err := parseDate(req.NeededBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.service.CreateRequisition(r.Context(), CreateRequisitionInput{
		Number:      req.Number,
		JobID:       req.JobID,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		RequestedBy: actor(r),
		NeededBy:    neededBy,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetRequisition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) listFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.service.ListRequisitionFills(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fills)
}

func (h *Handler) requisitionTransition(fn func(context.Context, string, string) (Requisition, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := fn(r.Context(), chi.URLParam(r, "id"), actor(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, req)
	}
}

func (h *Handler) fillRequisition(w http.ResponseWriter, r *http.Request) {
	var body fillRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.service.FillRequisition(r.Context(), chi.URLParam(r, "id"), body.Quantity, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) listCounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	counts, err := h.service.ListCounts(r.Context(), CountFilter{
		WarehouseID: q.Get("warehouse_id"),
		ItemID:      q.Get("item_id"),
		Status:      CountStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) createCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if !h.decode(w, r, &req) {
		return
	}
	countDate, err := parseDate(req.CountDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	count, err := h.service.CreateCount(r.Context(), CreateCountInput{
		WarehouseID:     req.WarehouseID,
		ItemID:          req.ItemID,
		CountDate:       countDate,
		SystemQuantity:  req.SystemQuantity,
		CountedQuantity: req.CountedQuantity,
		CountedBy:       actor(r),
		Notes:           req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, count)
}

func (h *Handler) getCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.GetCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

func (h *Handler) updateCountLine(w http.ResponseWriter, r *http.Request) {
	var req countLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	count, err := h.service.UpdateCountLine(r.Context(), chi.URLParam(r, "id"), req.CountedQuantity, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

func (h *Handler) countTransition(fn func(context.Context, string, string) (Count, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := fn(r.Context(), chi.URLParam(r, "id"), actor(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, count)
	}
}

func (h *Handler) auditTrail(entity string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.audit == nil {
			httpx.Problem(w, http.StatusNotImplemented, "Audit Unavailable", "audit trail is not configured")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		logs, err := h.audit.ListByEntity(r.Context(), entity, chi.URLParam(r, "id"), limit)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, logs)
	}
}

// decode reads and validates a request body, writing the problem response on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			err = fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderActor))
}

func activeOnly(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("active"))
	return err == nil && v
}
