package session

import (
	"strconv"

	"memit/internal/models"
)

// Phase is the coarse state of the live session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// View is a deep-copied picture of the controller for rendering.
type View struct {
	Session       Snapshot          `json:"session"`
	Phase         Phase             `json:"phase"`
	Generation    uint64            `json:"generation"`
	Pending       int               `json:"pendingResponses"`
	PendingModels []models.ModelRef `json:"pendingModelIds"`
	Saving        bool              `json:"isSaving"`
	Retrying      bool              `json:"isRetrying"`
	PastDepth     int               `json:"pastDepth"`
	FutureDepth   int               `json:"futureDepth"`
	CanGoBack     bool              `json:"canGoBack"`
	CanGoForward  bool              `json:"canGoForward"`
	Model         models.ModelRef   `json:"modelId"`
	Theme         string            `json:"theme"`
}

// SessionKey names the session of generation gen in events and request
// contexts.
func SessionKey(gen uint64) string {
	return "gen:" + strconv.FormatUint(gen, 10)
}
