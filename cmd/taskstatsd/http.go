package main

import (
	"net/http"
	"sort"
	"strings"

	"github.com/NYTimes/gziphandler"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/influxdata/taskstats"
	kerrors "github.com/influxdata/taskstats/kit/errors"
	"github.com/influxdata/taskstats/kit/prom"
	kithttp "github.com/influxdata/taskstats/kit/transport/http"
)

const tasksPath = "/api/v1/tasks"

// taskHandler serves the running task listing and the metrics endpoint.
type taskHandler struct {
	log      *zap.Logger
	registry *taskstats.Registry
}

// NewHandler returns the daemon's HTTP routes.
func NewHandler(log *zap.Logger, registry *taskstats.Registry, reg *prom.Registry, metrics *kithttp.RequestMetrics) http.Handler {
	h := &taskHandler{
		log:      log,
		registry: registry,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		kithttp.Trace("taskstatsd"),
		kithttp.Metrics(metrics),
	)

	r.Handle("/metrics", reg.HTTPHandler())
	r.Route(tasksPath, func(r chi.Router) {
		r.Use(gziphandler.GzipHandler)
		r.Get("/", h.handleListTasks)
		r.Get("/{id}", h.handleGetTask)
	})
	return r
}

type tasksResponse struct {
	Node  string               `json:"node"`
	Tasks []taskstats.TaskInfo `json:"tasks"`
}

// handleListTasks is the HTTP handler for the GET /api/v1/tasks route.
// The optional actions query parameter keeps tasks whose action starts
// with one of its comma separated prefixes.
func (h *taskHandler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var prefixes []string
	if v := r.URL.Query().Get("actions"); v != "" {
		prefixes = strings.Split(v, ",")
	}

	infos := h.registry.TaskInfos()
	tasks := make([]taskstats.TaskInfo, 0, len(infos))
	for _, info := range infos {
		if matchesAction(info.Action, prefixes) {
			tasks = append(tasks, info)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].TaskID.ID < tasks[j].TaskID.ID
	})

	kithttp.WriteJSON(w, http.StatusOK, tasksResponse{
		Node:  h.registry.Node(),
		Tasks: tasks,
	})
}

// handleGetTask is the HTTP handler for the GET /api/v1/tasks/{id} route.
func (h *taskHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskstats.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		kithttp.WriteError(w, err)
		return
	}
	if !id.IsSet() {
		kithttp.WriteError(w, kerrors.Invalidf("taskstatsd.handleGetTask", "task id is required"))
		return
	}

	notFound := &kerrors.Error{
		Code: kerrors.ENotFound,
		Op:   "taskstatsd.handleGetTask",
		Msg:  "task " + id.String() + " not found",
	}
	if id.NodeID != h.registry.Node() {
		kithttp.WriteError(w, notFound)
		return
	}
	t, ok := h.registry.Task(id.ID)
	if !ok {
		kithttp.WriteError(w, notFound)
		return
	}

	info, err := t.TaskInfo(h.registry.Node())
	if err != nil {
		h.log.Debug("Failed to report task", zap.Stringer("task_id", id), zap.Error(err))
		kithttp.WriteError(w, err)
		return
	}
	kithttp.WriteJSON(w, http.StatusOK, info)
}

func matchesAction(action string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(action, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}
