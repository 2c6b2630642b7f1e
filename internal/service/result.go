package service

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	logger "github.com/Gopher0727/Tavern/middleware/log"
)

const genericFailure = "something went wrong, try again later"

// Result is the outcome of one service call. Code is the HTTP status the
// transport should answer with.
type Result[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Code    int    `json:"code"`
	Success bool   `json:"success"`
}

// NotFoundError names the referenced entity that does not exist.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func notFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

func ok[T any](message string, data T) Result[T] {
	return Result[T]{Message: message, Data: data, Code: http.StatusOK, Success: true}
}

func created[T any](message string, data T) Result[T] {
	return Result[T]{Message: message, Data: data, Code: http.StatusCreated, Success: true}
}

// fail maps err onto a failed Result. Infrastructure errors are logged and
// hidden behind a generic message.
func fail[T any](ctx context.Context, log *logger.Logger, op string, err error) Result[T] {
	if de, isDomain := model.AsDomainError(err); isDomain {
		return Result[T]{Message: de.Message, Code: statusForKind(de.Kind)}
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return Result[T]{Message: nf.Error(), Code: http.StatusNotFound}
	}
	log.ErrorContext(ctx, "operation failed",
		zap.String("operation", op),
		zap.Error(err),
	)
	return Result[T]{Message: genericFailure, Code: http.StatusInternalServerError}
}

func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
