package utils

import (
	"errors"
	"log"
	"net/http"

	"propvet-server/services"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

func CreateError(statusCode int, title string, detail string, ctx iris.Context) {
	ctx.StopWithJSON(statusCode, iris.Map{
		"error":   title,
		"message": detail,
	})
}

func CreateInternalServerError(ctx iris.Context) {
	CreateError(iris.StatusInternalServerError, "Internal Server Error", "Oops! Try again later.", ctx)
}

func CreateNotFound(ctx iris.Context) {
	CreateError(iris.StatusNotFound, "Not Found", "Resource not found.", ctx)
}

type validationError struct {
	Tag       string `json:"tag"`
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Param     string `json:"param"`
}

// HandleValidationErrors turns validator failures from ctx.ReadJSON into a
// 400 with per-field details; anything else becomes a generic bad request.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := make([]validationError, 0, len(errs))
		for _, fieldErr := range errs {
			details = append(details, validationError{
				Tag:       fieldErr.Tag(),
				Namespace: fieldErr.Namespace(),
				Kind:      fieldErr.Kind().String(),
				Type:      fieldErr.Type().String(),
				Value:     fieldErr.Param(),
				Param:     fieldErr.Param(),
			})
		}
		ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{
			"error":            "Validation Error",
			"message":          "One or more fields failed validation.",
			"validationErrors": details,
		})
		return
	}

	CreateError(iris.StatusBadRequest, "Bad Request", "Invalid request payload.", ctx)
}

var serviceErrorStatus = map[services.ErrorKind]int{
	services.ErrValidation:     http.StatusBadRequest,
	services.ErrNotFound:       http.StatusNotFound,
	services.ErrAuthorization:  http.StatusForbidden,
	services.ErrAuthentication: http.StatusUnauthorized,
	services.ErrConflict:       http.StatusConflict,
	services.ErrInternal:       http.StatusInternalServerError,
}

// HandleServiceError maps a service error kind to an HTTP response. Internal
// failures are logged in full and returned as a generic message so store and
// gateway details never leak to the caller.
func HandleServiceError(err error, ctx iris.Context) {
	kind := services.KindOf(err)
	status, ok := serviceErrorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if kind == services.ErrInternal {
		log.Printf("internal error on %s %s: %v", ctx.Method(), ctx.Path(), err)
		CreateError(status, string(services.ErrInternal), "Oops! Try again later.", ctx)
		return
	}

	message := err.Error()
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}
	CreateError(status, string(kind), message, ctx)
}
