package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/service"
)

// generateResponse is the success payload for a synchronous invocation.
type generateResponse struct {
	Success          bool   `json:"success"`
	ImageURL         string `json:"imageUrl"`
	Cost             int    `json:"cost"`
	RemainingCredits int    `json:"remainingCredits"`
}

// Generate handles synchronous metered invocations for one tool. The tool
// comes from the route, the model (where the tool has several) from the body.
func Generate(invocationService *service.InvocationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		var input catalog.Input
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			logger.Error("Failed to decode generation request", zap.Error(err))
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		tool := chi.URLParam(r, "tool")
		modelID, _ := input["model"].(string)

		result, err := invocationService.Invoke(r.Context(), &service.InvokeRequest{
			AccountID: accountID,
			Tool:      tool,
			ModelID:   modelID,
			Input:     input,
		})
		if err != nil {
			logger.Warn("Generation request failed",
				zap.String("tool", tool),
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
			writeServiceError(w, err, "Generation failed")
			return
		}

		logger.Info("Generation completed",
			zap.String("tool", tool),
			zap.String("account_id", accountID.String()),
			zap.String("job_id", result.JobID.String()),
			zap.Int("cost", result.Cost),
		)

		writeJSONResponse(w, http.StatusOK, generateResponse{
			Success:          true,
			ImageURL:         result.MediaURL,
			Cost:             result.Cost,
			RemainingCredits: result.RemainingCredits,
		})
	}
}
