package handlers

import (
	"context"
	"net/http"

	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// LedgerHandler serves the pool, workflow and audit endpoints.
type LedgerHandler struct {
	store  *ledger.Store
	checks []HealthCheck
}

// HealthCheck is an extra dependency checked by /health.
type HealthCheck struct {
	Name  string
	Check func() error
}

// NewLedgerHandler creates a handler over the given store.
func NewLedgerHandler(store *ledger.Store, checks ...HealthCheck) *LedgerHandler {
	return &LedgerHandler{store: store, checks: checks}
}

func getOne[T any](w http.ResponseWriter, r *http.Request, get func(string) (T, error)) {
	v, err := get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func createOne[T any](w http.ResponseWriter, r *http.Request, create func(context.Context, string, T) (T, error)) {
	var in T
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := create(r.Context(), middleware.ActorID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func updateOne[P, T any](w http.ResponseWriter, r *http.Request, update func(context.Context, string, string, P) (T, error)) {
	var patch P
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := update(r.Context(), middleware.ActorID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func deleteOne(w http.ResponseWriter, r *http.Request, del func(context.Context, string, string) error) {
	if err := del(r.Context(), middleware.ActorID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterStatus keeps the records whose status matches ?status=, if given.
func filterStatus[T any, S ~string](r *http.Request, all []T, status func(T) S) []T {
	want := r.URL.Query().Get("status")
	if want == "" {
		return all
	}
	out := make([]T, 0, len(all))
	for _, v := range all {
		if string(status(v)) == want {
			out = append(out, v)
		}
	}
	return out
}

type statusBody[S ~string] struct {
	Status S      `json:"status"`
	Reason string `json:"reason"`
}

// Drivers

func (h *LedgerHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, filterStatus(r, h.store.Drivers(), func(d models.Driver) models.DriverStatus { return d.Status }))
}

func (h *LedgerHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	getOne(w, r, h.store.Driver)
}

func (h *LedgerHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	createOne(w, r, h.store.CreateDriver)
}

func (h *LedgerHandler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	updateOne(w, r, h.store.UpdateDriver)
}

func (h *LedgerHandler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	deleteOne(w, r, h.store.DeleteDriver)
}

// SetDriverStatus moves a driver along the status table. Active is not
// reachable here; assignments and reassignments own it.
func (h *LedgerHandler) SetDriverStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody[models.DriverStatus]
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := h.store.SetDriverStatus(r.Context(), ledger.StatusChangeRequest{
		ActorID:  middleware.ActorID(r.Context()),
		DriverID: r.PathValue("id"),
		Status:   body.Status,
		Reason:   body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Vehicles

func (h *LedgerHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, filterStatus(r, h.store.Vehicles(), func(v models.Vehicle) models.VehicleStatus { return v.Status }))
}

func (h *LedgerHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	getOne(w, r, h.store.Vehicle)
}

func (h *LedgerHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	createOne(w, r, h.store.CreateVehicle)
}

func (h *LedgerHandler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	updateOne(w, r, h.store.UpdateVehicle)
}

func (h *LedgerHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	deleteOne(w, r, h.store.DeleteVehicle)
}

func (h *LedgerHandler) SetVehicleStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody[models.VehicleStatus]
	if !decodeJSON(w, r, &body) {
		return
	}
	v, err := h.store.SetVehicleStatus(r.Context(), middleware.ActorID(r.Context()), r.PathValue("id"), body.Status, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SIMs

func (h *LedgerHandler) ListSims(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, filterStatus(r, h.store.Sims(), func(s models.Sim) models.SimStatus { return s.Status }))
}

func (h *LedgerHandler) GetSim(w http.ResponseWriter, r *http.Request) {
	getOne(w, r, h.store.Sim)
}

func (h *LedgerHandler) CreateSim(w http.ResponseWriter, r *http.Request) {
	createOne(w, r, h.store.CreateSim)
}

func (h *LedgerHandler) UpdateSim(w http.ResponseWriter, r *http.Request) {
	updateOne(w, r, h.store.UpdateSim)
}

func (h *LedgerHandler) DeleteSim(w http.ResponseWriter, r *http.Request) {
	deleteOne(w, r, h.store.DeleteSim)
}

func (h *LedgerHandler) SetSimStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody[models.SimStatus]
	if !decodeJSON(w, r, &body) {
		return
	}
	s, err := h.store.SetSimStatus(r.Context(), middleware.ActorID(r.Context()), r.PathValue("id"), body.Status, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Assets

func (h *LedgerHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Assets())
}

func (h *LedgerHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	getOne(w, r, h.store.Asset)
}

func (h *LedgerHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	createOne(w, r, h.store.CreateAsset)
}

func (h *LedgerHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	updateOne(w, r, h.store.UpdateAsset)
}

func (h *LedgerHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	deleteOne(w, r, h.store.DeleteAsset)
}

// AdjustAssetCapacity adds or removes units from an asset's stock.
func (h *LedgerHandler) AdjustAssetCapacity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta  int    `json:"delta"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	a, err := h.store.AdjustAssetCapacity(r.Context(), middleware.ActorID(r.Context()), r.PathValue("id"), body.Delta, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Clients

func (h *LedgerHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Clients())
}

func (h *LedgerHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	getOne(w, r, h.store.Client)
}

func (h *LedgerHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	createOne(w, r, h.store.CreateClient)
}

func (h *LedgerHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	updateOne(w, r, h.store.UpdateClient)
}

func (h *LedgerHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	deleteOne(w, r, h.store.DeleteClient)
}
