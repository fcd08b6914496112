package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core/reconcile"
)

type courseApi struct {
	overrider *reconcile.Overrider
}

func registerCourseAPI(g *echo.Group, overrider *reconcile.Overrider) {
	api := courseApi{overrider: overrider}

	g.POST("/courses/:id/validity", api.setValidity)
}

// setValidity locks a course's reviewed validity period and re-derives the expiry of
// all its records.
func (api *courseApi) setValidity(ctx echo.Context) error {
	var data reconcile.ValidityOverride
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ValidityOverride")
	}
	data.CourseID = ctx.Param("id")

	res, err := api.overrider.Override(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "overriding course validity")
	}
	return ctx.JSON(http.StatusOK, res)
}
