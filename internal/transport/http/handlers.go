// Copyright 2026 The Courseguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/courseguard/courseguard/internal/audit"
	"github.com/courseguard/courseguard/internal/authz"
	"github.com/courseguard/courseguard/internal/coursekey"
	"github.com/courseguard/courseguard/internal/observability/logger"
	"github.com/courseguard/courseguard/internal/observability/metrics"
)

// CourseRegistry records course runs so the existence oracle can answer
// for them.
type CourseRegistry interface {
	Upsert(ctx context.Context, course coursekey.CourseKey, displayName string) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	authzService *authz.Service
	courses      CourseRegistry
	gate         authz.FeatureGate
	auditLogger  audit.Logger
	verifier     *TokenVerifier
	authzMetrics *metrics.AuthzMetrics
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authzService *authz.Service,
	courses CourseRegistry,
	gate authz.FeatureGate,
	auditLogger audit.Logger,
	verifier *TokenVerifier,
	authzMetrics *metrics.AuthzMetrics,
) *Handler {
	return &Handler{
		authzService: authzService,
		courses:      courses,
		gate:         gate,
		auditLogger:  auditLogger,
		verifier:     verifier,
		authzMetrics: authzMetrics,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Use(RequestCacheMiddleware)

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.CreateAssignment)
			r.Get("/", h.ListAssignments)
			r.Delete("/{assignmentID}", h.DeleteAssignment)
		})

		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", h.ResolvePermissions)
			r.Get("/check", h.CheckPermission)
		})

		r.Get("/catalog", h.GetCatalog)

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Get("/{roleName}", h.GetRole)
		})

		r.Put("/courses", h.UpsertCourse)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "courseguard",
	})
}

// CreateAssignmentRequest binds a role to an actor within a scope.
// Supplying course_id makes a course-scoped grant, org alone makes an
// org-scoped grant, neither makes an instance-wide grant.
type CreateAssignmentRequest struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Org      string `json:"org,omitempty"`
	CourseID string `json:"course_id,omitempty"`
}

// AssignmentResponse is the wire form of an assignment
type AssignmentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Scope     string    `json:"scope"`
	Org       string    `json:"org,omitempty"`
	CourseID  string    `json:"course_id,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by,omitempty"`
}

func assignmentResponse(a *authz.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:        a.ID,
		UserID:    a.ActorID,
		Role:      a.Role,
		Scope:     string(a.Scope.Kind()),
		Org:       a.Scope.Org,
		CourseID:  a.Scope.Course.String(),
		GrantedAt: a.GrantedAt,
		GrantedBy: a.GrantedBy,
	}
}

// CreateAssignment grants a role to a user within a scope
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scope := authz.Scope{Org: req.Org}
	if req.CourseID != "" {
		course, err := coursekey.Parse(req.CourseID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid course_id")
			return
		}
		scope.Course = course
	}

	assignment, err := h.authzService.Assign(r.Context(), req.UserID, req.Role, scope, GetCallerID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrInvalidScope):
			respondError(w, http.StatusBadRequest, "invalid assignment scope")
		case errors.Is(err, authz.ErrRoleNotFound):
			respondError(w, http.StatusNotFound, "role not found")
		case errors.Is(err, authz.ErrDuplicateAssignment):
			respondError(w, http.StatusConflict, "assignment already exists")
		default:
			slog.ErrorContext(r.Context(), "failed to create assignment",
				logger.Error(err),
				logger.ActorID(req.UserID),
				logger.Role(req.Role),
			)
			respondError(w, http.StatusInternalServerError, "failed to create assignment")
		}
		return
	}

	if h.authzMetrics != nil {
		h.authzMetrics.RoleAssignments.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("role", req.Role)))
	}

	respondJSON(w, http.StatusCreated, assignmentResponse(assignment))
}

// ListAssignments returns every assignment held by a user
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	assignments, err := h.authzService.ListAssignments(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list assignments",
			logger.Error(err),
			logger.ActorID(userID),
		)
		respondError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}

	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, assignmentResponse(a))
	}

	respondJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

// DeleteAssignment revokes one assignment. Revoking an assignment that
// no longer exists succeeds.
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assignmentID")

	if err := h.authzService.Revoke(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "failed to revoke assignment",
			logger.Error(err),
			logger.AssignmentID(id),
		)
		respondError(w, http.StatusInternalServerError, "failed to revoke assignment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResolvePermissions returns the full permission set of a user within a
// course run
func (h *Handler) ResolvePermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	courseID := r.URL.Query().Get("course_id")
	if courseID == "" {
		respondError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	course, err := coursekey.Parse(courseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid course_id")
		return
	}

	perms, err := h.authzService.Resolve(r.Context(), authz.Actor{ID: userID}, course)
	if err != nil {
		if errors.Is(err, authz.ErrCourseNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to resolve permissions",
			logger.Error(err),
			logger.ActorID(userID),
			logger.CourseID(courseID),
		)
		respondError(w, http.StatusInternalServerError, "failed to resolve permissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"course_id":   courseID,
		"permissions": perms.Tokens(),
	})
}

// CheckPermission evaluates one permission for a user against a target.
// Checks go through the gated rule: a disabled gate, an anonymous user,
// or an unknown course all answer false without error.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	courseID := r.URL.Query().Get("course_id")
	permission := r.URL.Query().Get("permission")
	if courseID == "" || permission == "" {
		respondError(w, http.StatusBadRequest, "course_id and permission are required")
		return
	}

	rule := authz.NewRule(permission, h.authzService, h.gate, h.auditLogger)
	allowed, err := rule.Allow(r.Context(), authz.Actor{ID: userID}, courseID)
	if err != nil {
		if errors.Is(err, authz.ErrUnsupportedTarget) {
			respondError(w, http.StatusBadRequest, "invalid course_id")
			return
		}
		slog.ErrorContext(r.Context(), "permission check failed",
			logger.Error(err),
			logger.ActorID(userID),
			logger.CourseID(courseID),
			logger.Permission(permission),
		)
		respondError(w, http.StatusInternalServerError, "permission check failed")
		return
	}

	if h.authzMetrics != nil {
		attrs := metric.WithAttributes(attribute.String("permission", permission))
		h.authzMetrics.PermissionChecks.Add(r.Context(), 1, attrs)
		if !allowed {
			h.authzMetrics.PermissionDenials.Add(r.Context(), 1, attrs)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"course_id":  courseID,
		"permission": permission,
		"allowed":    allowed,
	})
}

// GetCatalog returns the closed permission catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	entries := authz.Catalog()
	out := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]string{
			"name":          e.Name,
			"readable_name": e.ReadableName,
			"description":   e.Description,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

// RoleResponse is the wire form of a role
type RoleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Services    []string `json:"services,omitempty"`
}

func roleResponse(role *authz.Role) RoleResponse {
	return RoleResponse{
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		Services:    role.Services,
	}
}

// ListRoles returns every registered role
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.authzService.Roles(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list roles", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse(role))
	}
	respondJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// GetRole returns one role by name
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "roleName")

	role, err := h.authzService.RoleByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get role",
			logger.Error(err),
			logger.Role(name),
		)
		respondError(w, http.StatusInternalServerError, "failed to get role")
		return
	}

	respondJSON(w, http.StatusOK, roleResponse(role))
}

// CreateRoleRequest registers a custom role. Permission tokens must
// come from the catalog.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Services    []string `json:"services,omitempty"`
}

// CreateRole registers a custom role
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, token := range req.Permissions {
		if !authz.KnownPermission(token) {
			respondError(w, http.StatusBadRequest, "unknown permission token: "+token)
			return
		}
	}

	role := &authz.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Services:    req.Services,
	}
	if err := h.authzService.CreateRole(r.Context(), role); err != nil {
		if errors.Is(err, authz.ErrRoleAlreadyExists) {
			respondError(w, http.StatusConflict, "role already exists")
			return
		}
		slog.ErrorContext(r.Context(), "failed to create role",
			logger.Error(err),
			logger.Role(req.Name),
		)
		respondError(w, http.StatusInternalServerError, "failed to create role")
		return
	}

	respondJSON(w, http.StatusCreated, roleResponse(role))
}

// UpsertCourseRequest registers a course run with the existence oracle
type UpsertCourseRequest struct {
	CourseID    string `json:"course_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// UpsertCourse records a course run so permission resolution can answer
// for it
func (h *Handler) UpsertCourse(w http.ResponseWriter, r *http.Request) {
	var req UpsertCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	course, err := coursekey.Parse(req.CourseID)
	if err != nil || !course.IsCourse() {
		respondError(w, http.StatusBadRequest, "invalid course_id")
		return
	}

	if err := h.courses.Upsert(r.Context(), course, req.DisplayName); err != nil {
		slog.ErrorContext(r.Context(), "failed to upsert course",
			logger.Error(err),
			logger.CourseID(req.CourseID),
		)
		respondError(w, http.StatusInternalServerError, "failed to upsert course")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
