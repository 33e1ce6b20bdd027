package orderservice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/validate"
)

// OrderHTTPHandler adapts HTTP requests to the IntakeService.
type OrderHTTPHandler struct {
	svc       ports.IntakeService
	validator *validate.Validator
	logger    *logger.Logger
}

// NewOrderHTTPHandler wires an HTTP handler around the IntakeService.
func NewOrderHTTPHandler(svc ports.IntakeService, validator *validate.Validator, logger *logger.Logger) *OrderHTTPHandler {
	return &OrderHTTPHandler{svc: svc, validator: validator, logger: logger}
}

// Register mounts the POST /orders route on the provided mux.
func (handler *OrderHTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", handler.handleCreateOrder)
}

// --- Request/Response DTOs (HTTP boundary) ---

type createOrderRequest struct {
	OrderID         string                   `json:"order_id"`
	CustomerID      string                   `json:"customer_id"`
	CustomerEmail   string                   `json:"customer_email,omitempty"`
	Priority        string                   `json:"priority,omitempty"`
	DeliveryAddress *string                  `json:"delivery_address,omitempty"`
	PaymentMethod   *string                  `json:"payment_method,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	Priority    string `json:"priority"`
	Channel     string `json:"channel"`
}

// --- Handler ---

func (handler *OrderHTTPHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", errors.New("unsupported content type: "+ct))
		return
	}

	// schema check first so the client gets every structural problem at once
	body := json.RawMessage{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}
	if ok, problems := handler.validator.ValidateMessage(body); !ok {
		handler.httpError(ctx, w, http.StatusBadRequest, strings.Join(problems, "; "), errors.New("schema validation failed"))
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	cmd := toCreateOrderCommand(req, r.Header.Get("X-Customer-Class"))

	handler.logger.Debug(ctx, "order_received", "new order request received", map[string]any{
		"order_id":    cmd.OrderID,
		"customer_id": cmd.CustomerID,
		"items_count": len(cmd.Items),
	})

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	placed, err := handler.svc.PlaceOrder(ctxWithTimeout, cmd)
	if err != nil {
		handler.placeOrderError(ctxWithTimeout, w, err)
		return
	}

	resp := createOrderResponse{
		OrderID:     placed.OrderID,
		Status:      string(placed.Status),
		TotalAmount: placed.TotalAmount,
		Priority:    string(placed.Tier),
		Channel:     placed.Channel,
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, resp)
}

// --- Helpers ---

func toCreateOrderCommand(req createOrderRequest, customerClass string) ports.CreateOrderCommand {
	items := make([]ports.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = ports.ItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	return ports.CreateOrderCommand{
		OrderID:         req.OrderID,
		CustomerID:      req.CustomerID,
		CustomerEmail:   req.CustomerEmail,
		Priority:        orders.ParseTier(req.Priority),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Items:           items,
		CustomerClass:   customerClass,
	}
}

// placeOrderError maps service failures to HTTP statuses.
func (handler *OrderHTTPHandler) placeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *orders.ValidationError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &vErr):
		handler.httpError(ctx, w, http.StatusBadRequest, vErr.Error(), err)
	case errors.Is(err, ports.ErrOrderAlreadyExists):
		handler.httpError(ctx, w, http.StatusConflict, "order already exists", err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// httpError sends a JSON error response with a message.
func (handler *OrderHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusConflict {
		action = "duplicate_order"
	}
	handler.logger.Error(ctx, action, msg, err)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// jsonResponse encodes any payload to the HTTP response.
func (handler *OrderHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "failed to encode response", err)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *OrderHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
