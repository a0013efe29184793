package api

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/bundler/internal/errors"
)

// writeError renders err as {"error": {code, message, status, details}}.
// Internal errors are logged and replaced by a generic message.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	bErr, ok := errors.As(err)
	if !ok {
		bErr = errors.NewInternal(err)
	}

	body := gin.H{
		"code":    string(bErr.Code),
		"message": errors.Message(err),
		"status":  bErr.Status,
	}
	if bErr.Code == errors.ErrInternal {
		logger.Error("internal error", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		body["message"] = "internal error"
	} else if len(bErr.Details) > 0 {
		body["details"] = bErr.Details
	}

	c.AbortWithStatusJSON(bErr.Status, gin.H{"error": body})
}

// queryInt parses an integer query parameter. Missing values return 0 so the ops
// layer applies its defaults.
func queryInt(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}

func pageParams(c *gin.Context) (page, pageSize int, err error) {
	if page, err = queryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(c, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func queryBool(c *gin.Context, name string) bool {
	s := c.Query(name)
	return s == "true" || s == "1"
}
