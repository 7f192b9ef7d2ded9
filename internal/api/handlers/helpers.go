package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/utils"
)

// writeAppError writes err as-is when it is an AppError, otherwise as an
// internal error with the given message
func writeAppError(w http.ResponseWriter, err error, message string) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		utils.WriteError(w, appErr)
		return
	}
	utils.WriteError(w, errors.Internal(message, err))
}
