package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// AuthHandler handles staff authentication and account requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, user *models.User, status int) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		log.WithError(err).Error("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		log.WithError(err).Error("Failed to generate refresh token")
		http.Error(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, models.LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         *user,
	})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq models.LoginRequest
	if !readJSON(w, r, &loginReq) {
		return
	}
	if loginReq.Username == "" || loginReq.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if err != nil {
		if !errors.Is(err, db.ErrUserNotFound) {
			log.WithError(err).Error("User lookup failed")
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !user.IsActive {
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	}
	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		log.WithField("username", loginReq.Username).Info("Failed login attempt")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).Warn("Failed to update last login")
	}
	h.issueTokens(w, user, http.StatusOK)
}

// Register creates a staff account as a viewer. The account that wins the
// first-admin claim on an empty database is promoted to admin.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var registerReq models.RegisterRequest
	if !readJSON(w, r, &registerReq) {
		return
	}
	if err := h.authService.ValidateUsername(registerReq.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.authService.ValidateEmail(registerReq.Email); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.userCollection.FindUserByUsername(r.Context(), registerReq.Username); err == nil {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	if _, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email); err == nil {
		http.Error(w, "Email already exists", http.StatusConflict)
		return
	}

	existing, err := h.userCollection.CountUsers(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to count users")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := models.User{
		Username:     registerReq.Username,
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         models.RoleViewer,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicateUser) {
			http.Error(w, "Username already exists", http.StatusConflict)
			return
		}
		log.WithError(err).Error("Failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	created, err := h.userCollection.FindUserByUsername(r.Context(), user.Username)
	if err != nil {
		log.WithError(err).Error("Failed to read back new user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing == 0 && !h.promoteFirstAdmin(w, r, created) {
		return
	}
	log.WithFields(log.Fields{"username": created.Username, "role": created.Role}).Info("Registered staff account")
	h.issueTokens(w, created, http.StatusCreated)
}

// promoteFirstAdmin makes created an admin when it wins the first-admin
// claim. Concurrent registrations on an empty database all try; one wins.
func (h *AuthHandler) promoteFirstAdmin(w http.ResponseWriter, r *http.Request, created *models.User) bool {
	claimed, err := h.userCollection.ClaimFirstAdmin(r.Context(), created.ID.Hex())
	if err != nil {
		log.WithError(err).Error("Failed to claim first admin")
		if delErr := h.userCollection.DeleteUser(r.Context(), created.ID.Hex()); delErr != nil {
			log.WithError(delErr).Warn("Failed to remove unpromoted first account")
		}
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return false
	}
	if !claimed {
		return true
	}
	created.Role = models.RoleAdmin
	if err := h.userCollection.UpdateUser(r.Context(), created.ID.Hex(), *created); err != nil {
		log.WithError(err).Error("Failed to promote first admin")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return false
	}
	return true
}

// Refresh issues a fresh token for a still-active account.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !user.IsActive {
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	}
	h.issueTokens(w, user, http.StatusOK)
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return nil, false
	}
	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return nil, false
	}
	return user, true
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's name and email
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var updateReq struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if !readJSON(w, r, &updateReq) {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Email != "" {
		if err := h.authService.ValidateEmail(updateReq.Email); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		existingUser, err := h.userCollection.FindUserByEmail(r.Context(), updateReq.Email)
		if err == nil && existingUser.ID != user.ID {
			http.Error(w, "Email already exists", http.StatusConflict)
			return
		}
		user.Email = updateReq.Email
	}

	if err := h.userCollection.UpdateUser(r.Context(), user.ID.Hex(), *user); err != nil {
		log.WithError(err).Error("Failed to update user")
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var passwordReq struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !readJSON(w, r, &passwordReq) {
		return
	}
	if passwordReq.CurrentPassword == "" || passwordReq.NewPassword == "" {
		http.Error(w, "Current password and new password are required", http.StatusBadRequest)
		return
	}
	if err := h.authService.ValidatePassword(passwordReq.NewPassword); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}
	user.PasswordHash = newPasswordHash
	if err := h.userCollection.UpdateUser(r.Context(), user.ID.Hex(), *user); err != nil {
		log.WithError(err).Error("Failed to update password")
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// ListUsers returns staff accounts, optionally filtered by ?role=.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	if role != "" && !models.IsValidRole(role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}
	users, err := h.userCollection.ListUsers(r.Context(), role)
	if err != nil {
		log.WithError(err).Error("Failed to list users")
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// UpdateUserAccess changes another account's role or active flag.
func (h *AuthHandler) UpdateUserAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     *models.Role `json:"role"`
		IsActive *bool        `json:"is_active"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if id == middleware.ActorID(r.Context()) {
		http.Error(w, "Cannot change your own access", http.StatusForbidden)
		return
	}
	user, err := h.userCollection.FindUserByID(r.Context(), id)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if req.Role != nil {
		if !models.IsValidRole(*req.Role) {
			http.Error(w, "Invalid role", http.StatusBadRequest)
			return
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if err := h.userCollection.UpdateUser(r.Context(), id, *user); err != nil {
		log.WithError(err).Error("Failed to update user access")
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{
		"actor_id": middleware.ActorID(r.Context()),
		"user_id":  id,
		"role":     user.Role,
		"active":   user.IsActive,
	}).Info("Changed staff access")
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser removes a staff account.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == middleware.ActorID(r.Context()) {
		http.Error(w, "Cannot delete your own account", http.StatusForbidden)
		return
	}
	if err := h.userCollection.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.WithError(err).Error("Failed to delete user")
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
