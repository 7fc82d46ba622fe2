package handler

import (
	"log/slog"
	"net/http"

	"github.com/Panchu11/obscura/internal/api/dto"
	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

// StatusFor maps a ledger error to its HTTP status by error class
func StatusFor(err error) int {
	switch domain.ClassOf(err) {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error response for a failed ledger operation.
// Internal errors are logged and hidden from the caller.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	class := domain.ClassOf(err)

	if status == http.StatusInternalServerError {
		logger.Error("Ledger operation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		c.JSON(status, dto.ErrorResponse{Error: "internal error", Class: string(class)})
		return
	}

	logger.Info("Ledger operation rejected",
		slog.String("operation", op),
		slog.String("class", string(class)),
		slog.String("error", err.Error()),
	)
	c.JSON(status, dto.ErrorResponse{Error: err.Error(), Class: string(class)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, Class: string(domain.ClassValidation)})
}
