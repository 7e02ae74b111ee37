// Package request holds the request parsing shared by the route handlers.
package request

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Actor returns the acting user's email set by the context or authentication middleware.
func Actor(c echo.Context) (string, error) {
	email := context.GetUserEmail(c.Request().Context())
	if strings.TrimSpace(email) == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "an acting user is required")
	}
	return email, nil
}

// Bind decodes the request body into dst.
func Bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.Validationf("invalid request body")
	}
	return nil
}

// SubjectRef reads the :kind and :key path parameters.
func SubjectRef(c echo.Context) (models.SubjectRef, error) {
	kind, err := models.ParseSubjectKind(c.Param("kind"))
	if err != nil {
		return models.SubjectRef{}, apperrors.Wrap(apperrors.KindValidation, err, err.Error())
	}

	key, err := url.PathUnescape(c.Param("key"))
	if err != nil {
		return models.SubjectRef{}, apperrors.Validationf("invalid subject key")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return models.SubjectRef{}, apperrors.Validationf("missing subject key")
	}
	return models.SubjectRef{Kind: kind, Key: key}, nil
}
