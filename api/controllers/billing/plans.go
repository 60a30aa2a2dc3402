package billing

import (
	"net/http"

	"github.com/angelmondragon/starter-billing/api/responses"
	"github.com/angelmondragon/starter-billing/internal/plans"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

// PublicPlans lists the purchasable plans and the trial length.
func PublicPlans(catalog *plans.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}
		responses.WriteSuccess(w, catalog)
	}
}
