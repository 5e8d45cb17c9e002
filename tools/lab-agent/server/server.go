// Package server exposes the lab over HTTP for the test suites.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/lab"
)

const (
	InternalServerErrorCode      = 500
	UnprocessableEntityErrorCode = 422
	NotFoundErrorCode            = 404
)

// Lab is what the agent needs from the devops environments.
type Lab interface {
	ListSnapshots(ctx context.Context, env string) ([]string, error)
	MakeSnapshot(ctx context.Context, env, name, description string) error
	RevertSnapshot(ctx context.Context, env, name string) error
	StartNode(ctx context.Context, env, node string) error
	PowerOffNode(ctx context.Context, env, node string) error
	NodeState(ctx context.Context, env, node string) (*devops.NodeState, error)
	AdminIP(ctx context.Context, env string) (string, error)
	SyncTime(ctx context.Context, env string, nodes []string) error
}

type handler struct {
	lab Lab
}

// NewRouter routes the lab agent API onto l.
func NewRouter(l Lab) *mux.Router {
	h := &handler{lab: l}
	router := mux.NewRouter()
	router.Use(logRequests)
	router.HandleFunc("/", homePage).Methods(http.MethodGet)

	env := router.PathPrefix("/envs/{env}").Subrouter()
	env.HandleFunc("/snapshots", h.listSnapshots).Methods(http.MethodGet)
	env.HandleFunc("/snapshots", h.makeSnapshot).Methods(http.MethodPost)
	env.HandleFunc("/snapshots/{name}/revert", h.revertSnapshot).Methods(http.MethodPost)
	env.HandleFunc("/nodes/start", h.startNodes).Methods(http.MethodPost)
	env.HandleFunc("/nodes/destroy", h.destroyNodes).Methods(http.MethodPost)
	env.HandleFunc("/nodes/{node}/poweroff", h.powerOff).Methods(http.MethodPost)
	env.HandleFunc("/nodes/{node}/poweron", h.powerOn).Methods(http.MethodPost)
	env.HandleFunc("/nodes/{node}", h.nodeState).Methods(http.MethodGet)
	env.HandleFunc("/admin", h.adminIP).Methods(http.MethodGet)
	env.HandleFunc("/time-sync", h.syncTime).Methods(http.MethodPost)
	return router
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("Handled request")
	})
}

func homePage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := InternalServerErrorCode
	if errors.Is(err, lab.ErrNotFound) {
		code = NotFoundErrorCode
	}
	log.WithError(err).WithField("code", code).Error("Request failed")
	writeJSON(w, code, devops.ErrorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, UnprocessableEntityErrorCode, devops.ErrorResponse{Error: fmt.Sprintf("bad request body: %v", err)})
		return false
	}
	return true
}

func decodeNodes(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var list devops.NodeList
	if !decode(w, r, &list) {
		return nil, false
	}
	if len(list.Nodes) == 0 {
		writeJSON(w, UnprocessableEntityErrorCode, devops.ErrorResponse{Error: "no nodes passed"})
		return nil, false
	}
	return list.Nodes, true
}

func (h *handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.lab.ListSnapshots(r.Context(), mux.Vars(r)["env"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devops.SnapshotList{Snapshots: snapshots})
}

func (h *handler) makeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req devops.SnapshotRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, UnprocessableEntityErrorCode, devops.ErrorResponse{Error: "no snapshot name passed"})
		return
	}
	if err := h.lab.MakeSnapshot(r.Context(), mux.Vars(r)["env"], req.Name, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handler) revertSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.lab.RevertSnapshot(r.Context(), vars["env"], vars["name"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) startNodes(w http.ResponseWriter, r *http.Request) {
	nodes, ok := decodeNodes(w, r)
	if !ok {
		return
	}
	for _, node := range nodes {
		if err := h.lab.StartNode(r.Context(), mux.Vars(r)["env"], node); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) destroyNodes(w http.ResponseWriter, r *http.Request) {
	nodes, ok := decodeNodes(w, r)
	if !ok {
		return
	}
	for _, node := range nodes {
		if err := h.lab.PowerOffNode(r.Context(), mux.Vars(r)["env"], node); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) powerOff(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.lab.PowerOffNode(r.Context(), vars["env"], vars["node"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) powerOn(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.lab.StartNode(r.Context(), vars["env"], vars["node"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) nodeState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	state, err := h.lab.NodeState(r.Context(), vars["env"], vars["node"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) adminIP(w http.ResponseWriter, r *http.Request) {
	ip, err := h.lab.AdminIP(r.Context(), mux.Vars(r)["env"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devops.AdminAddress{IP: ip})
}

func (h *handler) syncTime(w http.ResponseWriter, r *http.Request) {
	var list devops.NodeList
	if !decode(w, r, &list) {
		return
	}
	if err := h.lab.SyncTime(r.Context(), mux.Vars(r)["env"], list.Nodes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
