package status

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dd0wney/cluso-objectd/pkg/cluster"
	"github.com/dd0wney/cluso-objectd/pkg/control"
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/model"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	control.Snapshot
	RepositoryMode string             `json:"repository_mode,omitempty"`
	Nodes          []cluster.NodeInfo `json:"nodes,omitempty"`
}

// ModeRequest is the body of PUT /v1/repository/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Snapshot: s.Node.Snapshot()}
	if s.Modes != nil {
		resp.RepositoryMode = s.Modes.RepositoryInitMode().String()
	}
	if s.Members != nil {
		resp.Nodes = s.Members.GetAllNodes()
		slices.SortFunc(resp.Nodes, func(a, b cluster.NodeInfo) int {
			return strings.Compare(a.ID, b.ID)
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleLoaderDone is called by the loader once the node acknowledged all
// of its data.
func (s *Server) handleLoaderDone(w http.ResponseWriter, r *http.Request) {
	snap := s.Node.Snapshot()
	if snap.State != control.StateLoadingServer.String() {
		s.respondError(w, http.StatusConflict, "not loading, node is "+snap.State)
		return
	}
	if err := s.Announcer.LoadingDone(snap.Epoch); err != nil {
		s.logger.Warn("loading done broadcast failed", logging.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "broadcast failed, retry")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]int64{"epoch": snap.Epoch})
}

// handleSyncDone is called by the sync agent once every joiner has the data.
func (s *Server) handleSyncDone(w http.ResponseWriter, r *http.Request) {
	snap := s.Node.Snapshot()
	if snap.State != control.StateSyncServer.String() {
		s.respondError(w, http.StatusConflict, "no sync round, node is "+snap.State)
		return
	}
	if err := s.Announcer.SyncDone(snap.Target); err != nil {
		s.logger.Warn("sync done broadcast failed", logging.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "broadcast failed, retry")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]int64{"epoch": snap.Target})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, ModeRequest{Mode: s.Modes.RepositoryInitMode().String()})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := model.ParseRepositoryMode(req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Modes.SetRepositoryInitMode(mode)
	s.respondJSON(w, http.StatusOK, ModeRequest{Mode: mode.String()})
}

// handleRegisterClient records a session opened by the client-facing layer
// so its leftovers can be discarded when it dies.
func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		s.respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	s.Clients.Register(id)
	s.respondJSON(w, http.StatusCreated, map[string]uint64{"client": id})
}

// handleDiscardClient marks a client whose connection died. The control
// loop discards it on its next sweep.
func (s *Server) handleDiscardClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if !s.Clients.MarkStale(id) {
		s.respondError(w, http.StatusNotFound, "unknown client")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]uint64{"client": id})
}
