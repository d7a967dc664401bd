package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/redinc23/hathor-red/internal/triage"
	"github.com/redinc23/hathor-red/internal/types"
)

// maxPayloadBytes caps webhook bodies at GitHub's own delivery limit.
const maxPayloadBytes = 25 << 20

// statusResponse is the terse acknowledgement every delivery receives.
// Downstream triage failures surface in logs and the audit feed, never as
// webhook error responses: an error status would make GitHub's redelivery
// amplify transient issues into duplicate work.
type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// runEventPayload is the slice of a workflow_run delivery the pipeline
// needs. Everything else in the payload is refetched from the API, which
// is the source of truth for run state.
type runEventPayload struct {
	Action      string `json:"action"`
	WorkflowRun struct {
		ID int64 `json:"id"`
	} `json:"workflow_run"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// Handler is the HTTP handler for the webhook receiver.
type Handler struct {
	triage *triage.Service
	secret string
	log    *slog.Logger
	mux    *http.ServeMux
}

// NewHandler wires the receiver and registers its routes. The shared
// secret is mandatory: a receiver that skips signature checks would accept
// forged deliveries.
func NewHandler(svc *triage.Service, secret string, logger *slog.Logger) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("triage service is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{triage: svc, secret: secret, log: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("/webhook", h.webhook)
	h.mux.HandleFunc("/health", h.health)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// webhook handles POST /webhook. The signature check happens before any
// parsing: unauthenticated bodies are never interpreted.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "reading body")
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.secret) {
		h.log.Warn("rejected webhook delivery", "reason", "invalid signature",
			"remote", r.RemoteAddr)
		jsonErr(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if r.Header.Get("X-GitHub-Event") != "workflow_run" {
		jsonResp(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}

	var payload runEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.log.Warn("skipping malformed workflow_run payload", "error", err)
		jsonResp(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}
	if payload.Action != "completed" {
		jsonResp(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}

	id := types.RunID{
		Owner: payload.Repository.Owner.Login,
		Repo:  payload.Repository.Name,
		ID:    payload.WorkflowRun.ID,
	}
	if _, err := h.triage.HandleRunCompleted(r.Context(), id); err != nil {
		h.log.Error("triage failed, awaiting redelivery",
			"run", id.String(), "error", err)
	}
	jsonResp(w, http.StatusOK, statusResponse{Status: "processed"})
}

// health handles GET /health for liveness probes.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, statusResponse{Status: "ok"})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
