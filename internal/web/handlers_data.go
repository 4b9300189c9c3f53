package web

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/JonMunkholm/multinet/internal/auth"
	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/logging"
)

// handleFormats lists the registered upload formats.
func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Formats())
}

// handleCreateWorkspace creates an empty workspace.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	params, err := parseWorkspaceParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.CreateWorkspace(r.Context(), params.Workspace); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"workspace": params.Workspace})
}

// handleListWorkspaces lists the workspaces the caller can read.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Workspaces(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	p, _ := auth.PrincipalFrom(r.Context())
	visible := make([]string, 0, len(names))
	for _, name := range names {
		if s.authz.Authorize(r.Context(), p, name, auth.LevelReader) == nil {
			visible = append(visible, name)
		}
	}

	writeJSON(w, http.StatusOK, visible)
}

// handleDeleteWorkspace drops a workspace and all of its tables.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	params, err := parseWorkspaceParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteWorkspace(r.Context(), params.Workspace); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"workspace": params.Workspace})
}

// handleTableRows returns one page of a table as {"count", "rows"}.
// ?offset= and ?limit= page through it.
func (s *Server) handleTableRows(w http.ResponseWriter, r *http.Request) {
	params, err := parseRowsParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.TableRows(r.Context(), params.Workspace, params.Table, params.Offset, params.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteTable drops one table.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	params, err := parseTableParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteTable(r.Context(), params.Workspace, params.Table); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"table": params.Table})
}

// handleListTables lists a workspace's tables, optionally filtered by
// ?type=node or ?type=edge.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	params, err := parseWorkspaceParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filter, err := core.ParseTableFilter(r.URL.Query().Get("type"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	tables, err := s.service.ListTables(r.Context(), params.Workspace, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tables)
}

// handleDownloadTable writes a table as CSV. System columns come first
// (_key, then _from and _to for edge tables), followed by the sorted
// union of every other field.
func (s *Server) handleDownloadTable(w http.ResponseWriter, r *http.Request) {
	params, err := parseTableParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	docs, edge, err := s.service.TableDocuments(r.Context(), params.Workspace, params.Table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	columns := []string{"_key"}
	if edge {
		columns = append(columns, "_from", "_to")
	}
	system := make(map[string]bool, len(columns))
	for _, c := range columns {
		system[c] = true
	}

	seen := make(map[string]bool)
	var rest []string
	for _, doc := range docs {
		for field := range doc {
			if !system[field] && !seen[field] {
				seen[field] = true
				rest = append(rest, field)
			}
		}
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, params.Table))

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(columns); err != nil {
		// Can't change status code after writing, just log and return
		logging.FromContext(r.Context()).Error("csv download", "table", params.Table, "error", err)
		return
	}

	record := make([]string, len(columns))
	for _, doc := range docs {
		for i, c := range columns {
			record[i] = formatCell(doc[c])
		}
		if err := csvWriter.Write(record); err != nil {
			logging.FromContext(r.Context()).Error("csv download", "table", params.Table, "error", err)
			return
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		logging.FromContext(r.Context()).Error("csv download", "table", params.Table, "error", err)
	}
}

// formatCell formats a document value for CSV export.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int, int64:
		return fmt.Sprintf("%d", val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// handleHealth is the liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Ready   bool                     `json:"ready"`
	Store   core.HealthStatus        `json:"store"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleReady reports store reachability and upload capacity. Returns 503
// until the store has answered a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{
		Ready:   s.service.Ready(),
		Store:   s.service.Health(),
		Uploads: s.service.UploadLimiterStatus(),
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
