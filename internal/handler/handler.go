// Package handler adapts the service layer to gin. Every handler binds the
// request, calls one service operation and writes the Result as JSON with
// Result.Code as the HTTP status.
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

// Keys set on the gin context by the JWT middleware.
const (
	MemberIDKey = "member_id"
	EmailKey    = "email"
)

var errMissingFile = errors.New("file is required")

func respond[T any](c *gin.Context, res service.Result[T]) {
	c.JSON(res.Code, res)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, service.Result[any]{Message: err.Error(), Code: http.StatusBadRequest})
}

// caller returns the authenticated member id and email, or writes 401.
func caller(c *gin.Context) (memberID, email string, ok bool) {
	memberID = c.GetString(MemberIDKey)
	email = c.GetString(EmailKey)
	if memberID == "" {
		c.JSON(http.StatusUnauthorized, service.Result[any]{Message: "unauthorized", Code: http.StatusUnauthorized})
		return "", "", false
	}
	return memberID, email, true
}

// readUpload loads the multipart file under field. A missing file yields
// (nil, nil) when optional is set. Files larger than limit are rejected
// without being read fully.
func readUpload(c *gin.Context, field string, limit int64, optional bool) (*service.Upload, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		if optional {
			return nil, nil
		}
		return nil, errMissingFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	if limit > 0 && header.Size > limit {
		return nil, fmt.Errorf("file exceeds the %d byte limit", limit)
	}
	return openUpload(header, limit)
}

func openUpload(header *multipart.FileHeader, limit int64) (*service.Upload, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &service.Upload{Filename: header.Filename, Data: data}, nil
}
