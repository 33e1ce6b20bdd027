package trackingservice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"orderflow/internal/ports"
	"orderflow/internal/shared/logger"
)

// TrackingHTTPHandler adapts HTTP requests to the TrackingService.
type TrackingHTTPHandler struct {
	logger *logger.Logger
	svc    ports.TrackingService
}

// NewHandler wires an HTTP handler around the TrackingService.
func NewHandler(logger *logger.Logger, svc ports.TrackingService) *TrackingHTTPHandler {
	return &TrackingHTTPHandler{logger: logger, svc: svc}
}

// Register mounts the read-side routes on the provided mux.
func (handler *TrackingHTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /orders/{order_id}/status", handler.getOrderStatus)
	mux.HandleFunc("GET /orders/{order_id}/history", handler.getOrderHistory)
	mux.HandleFunc("GET /workers/status", handler.listWorkers)
}

// --- Handlers ---

func (handler *TrackingHTTPHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "GET /orders/{order_id}/status", map[string]any{"order_id": orderID})

	view, err := handler.svc.GetOrderStatus(ctx, orderID)
	if err != nil {
		handler.maybeNotFound(ctx, w, err)
		return
	}

	resp := map[string]any{
		"order_id":       view.OrderID,
		"current_status": string(view.CurrentStatus),
		"updated_at":     view.UpdatedAt,
		"last_event":     view.LastEvent,
	}
	handler.writeJSON(w, http.StatusOK, resp)
}

func (handler *TrackingHTTPHandler) getOrderHistory(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "GET /orders/{order_id}/history", map[string]any{"order_id": orderID})

	hist, err := handler.svc.GetOrderHistory(ctx, orderID)
	if err != nil {
		handler.maybeNotFound(ctx, w, err)
		return
	}

	if len(hist) == 0 {
		handler.writeErr(w, http.StatusNotFound, "not found")
		return
	}

	out := make([]map[string]any, 0, len(hist))
	for i := range hist {
		entry := map[string]any{
			"event_type": string(hist[i].EventType),
			"status":     string(hist[i].Status),
			"timestamp":  hist[i].OccurredAt,
			"emitted_by": hist[i].EmittedBy,
		}
		if hist[i].Reason != nil {
			entry["reason"] = *hist[i].Reason
		}
		out = append(out, entry)
	}
	handler.writeJSON(w, http.StatusOK, out)
}

func (handler *TrackingHTTPHandler) listWorkers(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	handler.logger.Debug(ctx, "request_received", "GET /workers/status", nil)

	// default threshold ~= 2 * 30s heartbeat
	offlineAfter := 60 * time.Second
	now := time.Now().UTC()
	views, err := handler.svc.ListWorkers(ctx, offlineAfter, now)
	if err != nil {
		handler.writeErr(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]map[string]any, 0, len(views))
	for i := range views {
		out = append(out, map[string]any{
			"worker_name":      views[i].WorkerName,
			"status":           views[i].Status,
			"orders_processed": views[i].OrdersProcessed,
			"last_seen":        views[i].LastSeen,
		})
	}
	handler.writeJSON(w, http.StatusOK, out)
}

// --- Helpers ---

// maybeNotFound maps an unknown order to 404 and everything else to 500.
func (handler *TrackingHTTPHandler) maybeNotFound(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ports.ErrOrderNotFound) {
		handler.writeErr(w, http.StatusNotFound, "not found")
		return
	}
	handler.logger.Error(ctx, "http_internal_error", "tracking query failed", err)
	handler.writeErr(w, http.StatusInternalServerError, "internal server error")
}

func (handler *TrackingHTTPHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (handler *TrackingHTTPHandler) writeErr(w http.ResponseWriter, status int, msg string) {
	handler.writeJSON(w, status, map[string]string{"error": msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
