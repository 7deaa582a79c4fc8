package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/boilerkit/boilerkit/internal/ctxkeys"
	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/boilerkit/boilerkit/internal/service/payment"
)

type billingHandler struct {
	subscriptionService *service.SubscriptionService
	paymentProvider     payment.Provider
}

func NewBillingHandler(subscriptionService *service.SubscriptionService, paymentProvider payment.Provider) *billingHandler {
	return &billingHandler{
		subscriptionService: subscriptionService,
		paymentProvider:     paymentProvider,
	}
}

// Plans returns the static plan catalog.
func (h *billingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, payment.Plans())
}

// Subscription returns the caller's current subscription.
func (h *billingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	sub, err := h.subscriptionService.Subscription(user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "No subscription found")
			return
		}
		slog.Error("failed to get subscription", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Could not load subscription")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"plan_id":            sub.PlanID,
		"status":             sub.Status,
		"interval":           sub.Interval,
		"price":              sub.FormatPrice(),
		"current_period_end": sub.CurrentPeriodEnd,
	})
}

// requireProvider guards the endpoints that need a configured payment
// provider. In development the server can run without Stripe keys.
func (h *billingHandler) requireProvider(w http.ResponseWriter) bool {
	if h.paymentProvider == nil {
		respondError(w, http.StatusServiceUnavailable, "Billing is not configured")
		return false
	}
	return true
}

// CreateCheckout starts a checkout session for a paid plan and returns the
// provider-hosted URL.
func (h *billingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}

	user := ctxkeys.User(r.Context())

	var req struct {
		PlanID   string `json:"plan_id"`
		Interval string `json:"interval"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if payment.PlanByID(req.PlanID) == nil || req.PlanID == model.SubscriptionPlanFree {
		respondError(w, http.StatusBadRequest, "Invalid plan selected")
		return
	}

	if req.Interval == "" {
		req.Interval = model.SubscriptionIntervalMonthly
	}

	checkoutURL, err := h.paymentProvider.CreateCheckoutURL(user.ID, req.PlanID, req.Interval, user.Email, user.Name)
	if err != nil {
		slog.Error("failed to create checkout", "error", err, "user_id", user.ID, "plan_id", req.PlanID, "provider", h.paymentProvider.Name())
		respondError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	slog.Info("checkout created", "user_id", user.ID, "provider", h.paymentProvider.Name())
	respondJSON(w, http.StatusOK, map[string]string{"checkout_url": checkoutURL})
}

// CustomerPortal returns the provider's self-service portal URL.
func (h *billingHandler) CustomerPortal(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}

	user := ctxkeys.User(r.Context())

	portalURL, err := h.paymentProvider.CustomerPortalURL(user.ID)
	if err != nil {
		slog.Error("failed to get customer portal", "error", err, "user_id", user.ID, "provider", h.paymentProvider.Name())
		respondError(w, http.StatusInternalServerError, "Failed to access customer portal")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"portal_url": portalURL})
}

// Webhook receives provider events. Signature verification happens inside
// the provider.
func (h *billingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err)
		respondError(w, http.StatusBadRequest, "Failed to read payload")
		return
	}
	defer r.Body.Close()

	err = h.paymentProvider.HandleWebhook(payload, r.Header)
	if err != nil {
		slog.Error("failed to handle webhook", "error", err, "provider", h.paymentProvider.Name())
		respondError(w, http.StatusBadRequest, "Failed to process webhook")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
