package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// NewRouter wires every endpoint behind rate limiting and authentication.
// Each ledger route is guarded by the permission its operation needs.
func NewRouter(ledgerH *LedgerHandler, authH *AuthHandler, authMW *middleware.AuthMiddleware, limiter *middleware.RateLimitMiddleware) http.Handler {
	mux := http.NewServeMux()
	p := authMW.Protect

	mux.HandleFunc("GET /health", ledgerH.Health)

	mux.HandleFunc("POST /api/auth/login", authH.Login)
	mux.HandleFunc("POST /api/auth/register", authH.Register)
	mux.HandleFunc("POST /api/auth/refresh", authH.Refresh)
	mux.HandleFunc("GET /api/auth/profile", authH.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", authH.UpdateProfile)
	mux.HandleFunc("POST /api/auth/change-password", authH.ChangePassword)

	mux.Handle("GET /api/users", p(models.PermManageUsers, authH.ListUsers))
	mux.Handle("PUT /api/users/{id}", p(models.PermManageUsers, authH.UpdateUserAccess))
	mux.Handle("DELETE /api/users/{id}", p(models.PermDeleteUser, authH.DeleteUser))

	mux.Handle("GET /api/drivers", p(models.PermViewPools, ledgerH.ListDrivers))
	mux.Handle("POST /api/drivers", p(models.PermManagePools, ledgerH.CreateDriver))
	mux.Handle("GET /api/drivers/{id}", p(models.PermViewPools, ledgerH.GetDriver))
	mux.Handle("PUT /api/drivers/{id}", p(models.PermManagePools, ledgerH.UpdateDriver))
	mux.Handle("DELETE /api/drivers/{id}", p(models.PermManagePools, ledgerH.DeleteDriver))
	mux.Handle("POST /api/drivers/{id}/status", p(models.PermManagePools, ledgerH.SetDriverStatus))

	mux.Handle("GET /api/vehicles", p(models.PermViewPools, ledgerH.ListVehicles))
	mux.Handle("POST /api/vehicles", p(models.PermManagePools, ledgerH.CreateVehicle))
	mux.Handle("GET /api/vehicles/{id}", p(models.PermViewPools, ledgerH.GetVehicle))
	mux.Handle("PUT /api/vehicles/{id}", p(models.PermManagePools, ledgerH.UpdateVehicle))
	mux.Handle("DELETE /api/vehicles/{id}", p(models.PermManagePools, ledgerH.DeleteVehicle))
	mux.Handle("POST /api/vehicles/{id}/status", p(models.PermManagePools, ledgerH.SetVehicleStatus))

	mux.Handle("GET /api/sims", p(models.PermViewPools, ledgerH.ListSims))
	mux.Handle("POST /api/sims", p(models.PermManagePools, ledgerH.CreateSim))
	mux.Handle("GET /api/sims/{id}", p(models.PermViewPools, ledgerH.GetSim))
	mux.Handle("PUT /api/sims/{id}", p(models.PermManagePools, ledgerH.UpdateSim))
	mux.Handle("DELETE /api/sims/{id}", p(models.PermManagePools, ledgerH.DeleteSim))
	mux.Handle("POST /api/sims/{id}/status", p(models.PermManagePools, ledgerH.SetSimStatus))

	mux.Handle("GET /api/assets", p(models.PermViewPools, ledgerH.ListAssets))
	mux.Handle("POST /api/assets", p(models.PermManagePools, ledgerH.CreateAsset))
	mux.Handle("GET /api/assets/{id}", p(models.PermViewPools, ledgerH.GetAsset))
	mux.Handle("PUT /api/assets/{id}", p(models.PermManagePools, ledgerH.UpdateAsset))
	mux.Handle("DELETE /api/assets/{id}", p(models.PermManagePools, ledgerH.DeleteAsset))
	mux.Handle("POST /api/assets/{id}/capacity", p(models.PermManagePools, ledgerH.AdjustAssetCapacity))

	mux.Handle("GET /api/clients", p(models.PermViewPools, ledgerH.ListClients))
	mux.Handle("POST /api/clients", p(models.PermManagePools, ledgerH.CreateClient))
	mux.Handle("GET /api/clients/{id}", p(models.PermViewPools, ledgerH.GetClient))
	mux.Handle("PUT /api/clients/{id}", p(models.PermManagePools, ledgerH.UpdateClient))
	mux.Handle("DELETE /api/clients/{id}", p(models.PermManagePools, ledgerH.DeleteClient))

	mux.Handle("POST /api/assignments", p(models.PermAssignDriver, ledgerH.SubmitAssignment))
	mux.Handle("GET /api/assignments", p(models.PermViewPools, ledgerH.ListAssignments))
	mux.Handle("POST /api/reassignments", p(models.PermReassignDriver, ledgerH.SubmitReassignment))
	mux.Handle("POST /api/missing-items/resolve", p(models.PermResolveMissing, ledgerH.ResolveMissing))
	mux.Handle("POST /api/idle-decay/run", p(models.PermRunDecay, ledgerH.RunIdleDecay))
	mux.Handle("GET /api/audit-logs", p(models.PermViewAudit, ledgerH.ListAuditLogs))

	var h http.Handler = authMW.Authenticate(mux)
	if limiter != nil {
		h = limiter.RateLimit(h)
	}
	return h
}
