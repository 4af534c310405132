package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProblemContentType is the media type for all error responses
const ProblemContentType = "application/problem+json"

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Problem is the RFC 7807 problem-details body used for every error
// response. Code carries the application error code as an extension
// member so clients can branch without parsing detail text.
type Problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

type Meta struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
	Total int `json:"total,omitempty"`
}

// Success responses
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a problem+json response. The Content-Type header must
// be set before c.JSON, which only fills it in when unset.
func Error(c *gin.Context, statusCode int, code, detail string) {
	c.Header("Content-Type", ProblemContentType)
	c.JSON(statusCode, Problem{
		Status: statusCode,
		Title:  http.StatusText(statusCode),
		Detail: detail,
		Code:   code,
	})
}

// Common error responses
func BadRequest(c *gin.Context, detail string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", detail)
}

func Unauthorized(c *gin.Context, detail string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", detail)
}

func Forbidden(c *gin.Context, detail string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", detail)
}

func NotFound(c *gin.Context, detail string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", detail)
}

func Conflict(c *gin.Context, detail string) {
	Error(c, http.StatusConflict, "CONFLICT", detail)
}

func InternalServerError(c *gin.Context, detail string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", detail)
}
