package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core/training"
)

type anomalyApi struct {
	store training.AnomalyStore
}

func registerAnomalyAPI(g *echo.Group, store training.AnomalyStore) {
	api := anomalyApi{store: store}

	g.GET("/anomalies", api.query)
}

func (api *anomalyApi) query(ctx echo.Context) error {
	var filter training.AnomalyFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return ctx.JSON(http.StatusOK, []training.Anomaly{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	anomalies, err := api.store.QueryAnomalies(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying anomalies")
	}
	if anomalies == nil {
		anomalies = []training.Anomaly{}
	}
	return ctx.JSON(http.StatusOK, anomalies)
}
