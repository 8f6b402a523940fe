package http

import (
	"net/http"
	"strconv"

	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/plan"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/database"
	"github.com/guildhost/guildhost/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Provisioner *service.ProvisioningService
	Lifecycle   *service.LifecycleService
	Scaler      *service.AutoScaler
	Store       database.Store
}

// actor resolves the operator identity for audit entries. The dashboard sends
// X-Actor; absent it, actions are attributed to "operator".
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "operator"
}

// ---------------------------------------------------------------------------
// Deployments
// ---------------------------------------------------------------------------

func (h *Handlers) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ProvisionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.OrderID, "order_id") || !requireField(w, req.GuildID, "guild_id") {
		return
	}

	d, err := h.Provisioner.Provision(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "provisioning failed")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		ds, err := h.Store.ListDeploymentsByStatus(r.Context(), deployment.Status(status))
		if err != nil {
			writeDomainError(w, err, "deployments not found")
			return
		}
		writeJSON(w, http.StatusOK, ds)
		return
	}

	ds, err := h.Store.ListDeployments(r.Context())
	if err != nil {
		writeDomainError(w, err, "deployments not found")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handlers) GetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.Store.GetDeployment(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) SuspendDeployment(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONOptional[struct {
		Reason string `json:"reason"`
	}](w, r)
	if !ok {
		return
	}

	if err := h.Lifecycle.Suspend(r.Context(), urlParam(r, "id"), body.Reason, actor(r)); err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(deployment.StatusSuspended)})
}

func (h *Handlers) ResumeDeployment(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.Resume(r.Context(), urlParam(r, "id"), actor(r)); err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(deployment.StatusActive)})
}

func (h *Handlers) ResizeDeployment(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Tier   string   `json:"tier"`
		Addons []string `json:"addons"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.Tier, "tier") {
		return
	}

	d, err := h.Lifecycle.Resize(r.Context(), urlParam(r, "id"), body.Tier, body.Addons, actor(r))
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) TerminateDeployment(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.Terminate(r.Context(), urlParam(r, "id"), actor(r)); err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(deployment.StatusTerminated)})
}

func (h *Handlers) ListDeploymentActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := h.Store.ListActionLogs(r.Context(), urlParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ---------------------------------------------------------------------------
// Scaling
// ---------------------------------------------------------------------------

func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	usage, ok := readJSON[controlplane.Usage](w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	if _, err := h.Store.GetDeployment(r.Context(), id); err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	if err := h.Scaler.RecordUsage(r.Context(), id, usage); err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// CheckScaling runs one full scaling cycle synchronously and returns the
// decision, so operators can trigger and observe a cycle outside the
// scheduler cadence.
func (h *Handlers) CheckScaling(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	d, err := h.Store.GetDeployment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	if !d.Bound() {
		writeError(w, http.StatusConflict, "deployment has no runtime binding")
		return
	}

	decision, applied, err := h.Scaler.Check(r.Context(), d)
	if err != nil {
		writeError(w, http.StatusBadGateway, "scaling cycle failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decision": decision,
		"applied":  applied,
	})
}

// ---------------------------------------------------------------------------
// Plan catalog
// ---------------------------------------------------------------------------

func (h *Handlers) ListPlans(w http.ResponseWriter, _ *http.Request) {
	type tierInfo struct {
		Name      string   `json:"name"`
		Resources any      `json:"resources"`
		Features  []string `json:"features"`
	}
	tiers := make([]tierInfo, 0, len(plan.Tiers()))
	for _, name := range plan.Tiers() {
		t, _ := plan.TierByName(name)
		tiers = append(tiers, tierInfo{Name: t.Name, Resources: t.Resources, Features: t.Features})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers":  tiers,
		"addons": plan.Addons(),
	})
}
