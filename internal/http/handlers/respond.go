package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The error body shapes are part of the wire contract and are deliberately
// flat: {"error": "..."} for single faults, {"errors": {field: [...]}} for
// validation details, {"message": "..."} for confirmations and not-found.

func RespondError(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"error": message})
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message)
}

func RespondUnprocessable(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnprocessableEntity, message)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, message)
}

func RespondValidation(ctx *gin.Context, fields map[string][]string) {
	ctx.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fields})
}

func RespondNotFound(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusNotFound, gin.H{"message": message})
}

func RespondMessage(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusOK, gin.H{"message": message})
}
