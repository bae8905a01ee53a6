package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/praktis/pricecompare/api/responses"
	"github.com/praktis/pricecompare/api/validators"
	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
	"github.com/praktis/pricecompare/pkg/logger"
)

// ProductHistory returns the price history chart data for one product.
// The optional site query narrows the series to a single store.
func ProductHistory(svc ComparisonService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "comparison service unavailable"))
			return
		}
		sku := strings.TrimSpace(chi.URLParam(r, "sku"))
		if sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required"))
			return
		}
		site := validators.SanitizeString(r.URL.Query().Get("site"), validators.MaxCodeLength)
		history, err := svc.History(r.Context(), sku, site)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}
