package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"k8s.io/apimachinery/pkg/util/validation"

	"dbupdater/internal/reconciler"
)

type healthResponse struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Items []reconciler.ReconcileStatus `json:"items"`
}

type triggerResponse struct {
	ResourceType string `json:"resourceType"`
	Name         string `json:"name"`
	Namespace    string `json:"namespace"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.manager.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Items: s.manager.GetAllStatuses()})
}

// handleTriggerReconcile enqueues a reconcile. The resource type defaults to
// DatabaseUpdate and can be selected with ?type=.
func (s *Server) handleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	resourceType := r.URL.Query().Get("type")
	if resourceType == "" {
		resourceType = string(reconciler.ResourceTypeDatabaseUpdate)
	}
	if !reconciler.IsValidResourceType(resourceType) {
		writeError(w, http.StatusBadRequest, "unknown resource type")
		return
	}

	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")
	if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "invalid name: "+errs[0])
		return
	}
	if errs := validation.IsDNS1123Label(namespace); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "invalid namespace: "+errs[0])
		return
	}

	if !s.manager.IsRunning() {
		writeError(w, http.StatusServiceUnavailable, "reconcile manager is not running")
		return
	}

	s.manager.TriggerReconcile(reconciler.ResourceType(resourceType), name, namespace)
	writeJSON(w, http.StatusAccepted, triggerResponse{
		ResourceType: resourceType,
		Name:         name,
		Namespace:    namespace,
	})
}
