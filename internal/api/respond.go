package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/validation"
)

const genericErrorMessage = "内部エラーが発生しました"

// writeJSON always answers 200; callers inspect "success". A safe "callback"
// parameter turns the body into a JSONP call.
func writeJSON(w http.ResponseWriter, p params, body interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		http.Error(w, genericErrorMessage, http.StatusInternalServerError)
		return
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")

	if cb := p.str("callback"); validation.IsSafeCallback(cb) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("/**/" + cb + "("))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte(");"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// writeError renders {success:false, error}. Only StandardError messages are
// shown; anything else becomes a generic message.
func writeError(w http.ResponseWriter, p params, err error) {
	writeJSON(w, p, map[string]interface{}{
		"success": false,
		"error":   errorMessage(err),
	})
}

func errorMessage(err error) string {
	stdErr, ok := apperrors.AsStandardError(err)
	if !ok || stdErr.Code == apperrors.ErrCodeInternal {
		return genericErrorMessage
	}
	switch stdErr.Code {
	case apperrors.ErrCodeDatabaseConnectionFailed, apperrors.ErrCodeDatabaseQueryFailed,
		apperrors.ErrCodeNotificationSendFailed, apperrors.ErrCodeWorkflowStartFailed:
		return genericErrorMessage
	}
	return stdErr.Message
}
