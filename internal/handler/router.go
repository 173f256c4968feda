package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/obelyakov/teleshop-checkout/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
// Вебхуки провайдеров не проходят аутентификацию: их подлинность
// подтверждает подпись в теле уведомления.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
			r.Post("/orders/{orderID}/cancel", h.CancelOrder)

			r.Post("/cart/apply-promo", h.ApplyPromo)

			r.Get("/bonus/info", h.GetBonusInfo)
			r.Get("/bonus/transactions", h.GetBonusTransactions)
			r.Get("/bonus/milestones", h.GetBonusMilestones)

			r.Route("/admin/bonus", func(r chi.Router) {
				r.Post("/add", h.AdminAddBonus)
				r.Post("/subtract", h.AdminSubtractBonus)
				r.Post("/set", h.AdminSetBonus)
			})
		})
	})

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/freekassa", h.FreeKassaWebhook)
		r.Post("/paypalych", h.PaypalychWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
