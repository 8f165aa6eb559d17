package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// createTaskRequest is the POST /tasks body.
type createTaskRequest struct {
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleTasks routes GET (list) and POST (create) on /tasks.
func (g *Gateway) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListTasks(w, r)
	case http.MethodPost:
		g.handleCreateTask(w, r)
	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleListTasks implements GET /tasks?owner=<id>.
func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		g.writeError(w, "owner is required", http.StatusBadRequest)
		return
	}

	tasks, err := g.store.ListByOwner(r.Context(), owner)
	if err != nil {
		g.logger.Error("listing tasks failed", "owner", owner, "error", err)
		g.writeError(w, "failed to fetch tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	g.writeJSON(w, http.StatusOK, tasks)
}

// handleCreateTask implements POST /tasks. Creation always runs through the
// enhancement service; an upstream failure falls back to the deterministic
// local breakdown instead of failing the request.
func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.Title == "" {
		g.writeError(w, "owner and title are required", http.StatusBadRequest)
		return
	}

	enhancement, err := g.enhancer.Enhance(r.Context(), req.Title, req.Description)
	if err != nil {
		g.logger.Warn("enhancement failed, using fallback", "title", req.Title, "error", err)
		enhancement = enhance.Fallback(req.Title, req.Description)
	}

	task, err := g.store.Create(r.Context(), store.Task{
		Owner:               req.Owner,
		Title:               req.Title,
		Description:         req.Description,
		EnhancedDescription: enhancement.Description,
		Steps:               enhancement.Steps,
	})
	if err != nil {
		g.logger.Error("task creation failed", "owner", req.Owner, "error", err)
		g.writeError(w, "failed to create task", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, task)
}

// handleTaskByID routes PATCH and DELETE on /tasks/{id}.
func (g *Gateway) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if id == "" || strings.Contains(id, "/") {
		g.writeError(w, "task id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		g.handleUpdateTask(w, r, id)
	case http.MethodDelete:
		g.handleDeleteTask(w, r, id)
	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleUpdateTask(w http.ResponseWriter, r *http.Request, id string) {
	var upd store.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		g.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	task, err := g.store.Update(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.writeError(w, "task not found", http.StatusNotFound)
			return
		}
		g.logger.Error("task update failed", "id", id, "error", err)
		g.writeError(w, "failed to update task", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, task)
}

func (g *Gateway) handleDeleteTask(w http.ResponseWriter, r *http.Request, id string) {
	if err := g.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.writeError(w, "task not found", http.StatusNotFound)
			return
		}
		g.logger.Error("task delete failed", "id", id, "error", err)
		g.writeError(w, "failed to delete task", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
