package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/chatsync/pkg/api"
)

// writeError отвечает конвертом {success: false, error} как и обработчики
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Envelope{Error: message})
}
