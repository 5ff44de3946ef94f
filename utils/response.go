package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the payload written for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine readable code and a human readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Respond writes data as JSON with the given status code.
func Respond(ctx *gin.Context, status int, data interface{}) {
	ctx.JSON(status, data)
}

// Success returns a 200 response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, data)
}

// Created returns a 201 response.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code string, message string) {
	ctx.JSON(status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// Fail converts err into an error response. Domain failures keep their status and code,
// anything else is logged and reported as an internal error.
func Fail(ctx *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		Error(ctx, appErr.Status, appErr.Code, appErr.Message)
		return
	}
	Sugar.Errorw("request failed", "method", ctx.Request.Method, "path", ctx.Request.URL.Path, "error", err)
	Error(ctx, http.StatusInternalServerError, CodeInternal, "internal server error")
}
