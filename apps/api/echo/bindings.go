package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/carematrix/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the `ordering` query param, e.g. `?ordering=-created_at,row`.
func (ord *Ordering) Bind(ctx echo.Context) {
	if val := ctx.QueryParam(orderingParam); val != "" {
		ord.Orderings = core.ParseOrdering(val)
	}
}
