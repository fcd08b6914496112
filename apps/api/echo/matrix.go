package echoapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/matrix"
	"github.com/trezcool/carematrix/core/reconcile"
)

const matrixFormField = "matrix"

type matrixApi struct {
	pipeline *reconcile.Pipeline
}

func registerMatrixAPI(g *echo.Group, pipeline *reconcile.Pipeline, bodyLimit echo.MiddlewareFunc) {
	api := matrixApi{pipeline: pipeline}

	g.POST("/locations/:location/matrix", api.reconcile, bodyLimit)
}

// reconcile runs one location's export through the pipeline. The export is either the
// raw CSV body or a multipart `matrix` file; `?dry_run=true` reports without writing.
func (api *matrixApi) reconcile(ctx echo.Context) error {
	var opts reconcile.RunOptions
	if v := ctx.QueryParam("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "dry_run", Error: "must be a boolean"})
		}
		opts.DryRun = dryRun
	}

	data, source, err := readMatrixUpload(ctx)
	if err != nil {
		return err
	}
	grid, err := matrix.ReadCSV(data)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: matrixFormField, Error: err.Error()})
	}

	input := reconcile.MatrixInput{Location: ctx.Param("location"), Grid: grid, Source: source}
	res, err := api.pipeline.Run(ctx.Request().Context(), []reconcile.MatrixInput{input}, opts)
	if err != nil {
		return errors.Wrap(err, "reconciling matrix")
	}
	return ctx.JSON(http.StatusOK, res)
}

func readMatrixUpload(ctx echo.Context) (data []byte, source string, err error) {
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := ctx.FormFile(matrixFormField)
		if err != nil {
			return nil, "", core.NewValidationError(nil, core.FieldError{Field: matrixFormField, Error: "this field is required"})
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", errors.Wrap(err, "opening uploaded matrix")
		}
		defer func() { _ = f.Close() }()

		if data, err = io.ReadAll(f); err != nil {
			return nil, "", errors.Wrap(err, "reading uploaded matrix")
		}
		return data, fh.Filename, nil
	}

	if data, err = io.ReadAll(ctx.Request().Body); err != nil {
		return nil, "", errors.Wrap(err, "reading request body")
	}
	return data, "", nil
}
