package server

import (
	"net/http"
	"time"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// =============================================================================
// MEMORY CRUD HANDLERS
// =============================================================================

// resourceType maps an URL resource segment to its memory type.
func resourceType(res string) (types.MemoryType, bool) {
	switch res {
	case "facts":
		return types.TypeFact, true
	case "decisions":
		return types.TypeDecision, true
	case "tasks":
		return types.TypeTask, true
	case "events":
		return types.TypeEvent, true
	case "projects":
		return types.TypeProject, true
	}
	return "", false
}

func (s *Server) memoryCreateHandler(res string) http.HandlerFunc {
	switch res {
	case "facts":
		return s.handleCreateFact
	case "decisions":
		return s.handleCreateDecision
	case "tasks":
		return s.handleCreateTask
	case "events":
		return s.handleCreateEvent
	default:
		return s.handleCreateProject
	}
}

func (s *Server) memoryListHandler(res string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := s.resolveAgent(r.Context(), r.URL.Query().Get("agent_id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		limit := queryInt(r, "limit", 0)

		var items interface{}
		switch res {
		case "facts":
			items, err = s.store.ListFacts(r.Context(), agentID, limit)
		case "decisions":
			items, err = s.store.ListDecisions(r.Context(), agentID, limit)
		case "tasks":
			status := r.URL.Query().Get("status")
			if status != "" && !types.ValidTaskStatus(status) {
				s.writeError(w, r, badRequest("invalid task status %q", status))
				return
			}
			items, err = s.store.ListTasks(r.Context(), agentID, status, limit)
		case "events":
			items, err = s.store.ListEvents(r.Context(), agentID, limit)
		default:
			items, err = s.store.ListProjects(r.Context(), agentID, limit)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{res: items})
	}
}

func (s *Server) memoryGetHandler(res string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var (
			item interface{}
			err  error
		)
		switch res {
		case "facts":
			item, err = s.store.GetFact(r.Context(), id)
		case "decisions":
			item, err = s.store.GetDecision(r.Context(), id)
		case "tasks":
			item, err = s.store.GetTask(r.Context(), id)
		case "events":
			item, err = s.store.GetEvent(r.Context(), id)
		default:
			item, err = s.store.GetProject(r.Context(), id)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, item)
	}
}

func (s *Server) memoryUpdateHandler(res string) http.HandlerFunc {
	switch res {
	case "facts":
		return s.handleUpdateFact
	case "decisions":
		return s.handleUpdateDecision
	case "tasks":
		return s.handleUpdateTask
	case "events":
		return s.handleUpdateEvent
	default:
		return s.handleUpdateProject
	}
}

func (s *Server) memoryDeleteHandler(res string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var err error
		switch res {
		case "facts":
			err = s.store.DeleteFact(r.Context(), id)
		case "decisions":
			err = s.store.DeleteDecision(r.Context(), id)
		case "tasks":
			err = s.store.DeleteTask(r.Context(), id)
		case "events":
			err = s.store.DeleteEvent(r.Context(), id)
		default:
			err = s.store.DeleteProject(r.Context(), id)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRevive pulls a cooled or archived item back to active.
func (s *Server) handleRevive(w http.ResponseWriter, r *http.Request) {
	t, ok := resourceType(r.PathValue("resource"))
	if !ok || !types.IsRecallable(t) {
		s.writeError(w, r, badRequest("resource does not support revival"))
		return
	}
	id := r.PathValue("id")
	if err := s.store.Revive(r.Context(), t, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           id,
		"decay_status": types.DecayActive,
	})
}

// ------ facts ------

type createFactRequest struct {
	AgentID    string     `json:"agent_id"`
	Content    string     `json:"content"`
	Subject    *string    `json:"subject"`
	Confidence *float64   `json:"confidence"`
	Source     *string    `json:"source"`
	Tags       []string   `json:"tags"`
	ValidUntil *time.Time `json:"valid_until"`
	SessionID  *string    `json:"session_id"`
}

func (s *Server) handleCreateFact(w http.ResponseWriter, r *http.Request) {
	var req createFactRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == "" {
		s.writeError(w, r, badRequest("content is required"))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		s.writeError(w, r, badRequest("confidence must be between 0 and 1"))
		return
	}

	f := &types.Fact{
		AgentID:    agentID,
		Content:    req.Content,
		Subject:    req.Subject,
		Source:     req.Source,
		Tags:       req.Tags,
		ValidUntil: req.ValidUntil,
		SessionID:  req.SessionID,
	}
	if req.Confidence != nil {
		f.Confidence = *req.Confidence
	}
	if err := s.pipeline.StoreFact(r.Context(), f); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, f)
}

type updateFactRequest struct {
	Content      *string    `json:"content"`
	Subject      *string    `json:"subject"`
	Confidence   *float64   `json:"confidence"`
	Source       *string    `json:"source"`
	Tags         []string   `json:"tags"`
	ValidUntil   *time.Time `json:"valid_until"`
	SupersededBy *string    `json:"superseded_by"`
}

func (s *Server) handleUpdateFact(w http.ResponseWriter, r *http.Request) {
	var req updateFactRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	upd := store.FactUpdate{
		Content:      req.Content,
		Subject:      req.Subject,
		Confidence:   req.Confidence,
		Source:       req.Source,
		Tags:         req.Tags,
		ValidUntil:   req.ValidUntil,
		SupersededBy: req.SupersededBy,
	}
	// A content rewrite invalidates the stored vector; re-embed best-effort.
	if req.Content != nil && s.embedder != nil {
		if vec, err := s.embedder.Embed(r.Context(), *req.Content); err == nil {
			upd.Embedding = vec
		}
	}
	f, err := s.store.UpdateFact(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

// ------ decisions ------

type createDecisionRequest struct {
	AgentID      string   `json:"agent_id"`
	Title        string   `json:"title"`
	Decision     string   `json:"decision"`
	Rationale    *string  `json:"rationale"`
	Alternatives []string `json:"alternatives"`
	Context      *string  `json:"context"`
	SessionID    *string  `json:"session_id"`
	ProjectID    *string  `json:"project_id"`
	Tags         []string `json:"tags"`
}

func (s *Server) handleCreateDecision(w http.ResponseWriter, r *http.Request) {
	var req createDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title == "" || req.Decision == "" {
		s.writeError(w, r, badRequest("title and decision are required"))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d := &types.Decision{
		AgentID:      agentID,
		Title:        req.Title,
		Decision:     req.Decision,
		Rationale:    req.Rationale,
		Alternatives: req.Alternatives,
		Context:      req.Context,
		SessionID:    req.SessionID,
		ProjectID:    req.ProjectID,
		Tags:         req.Tags,
	}
	if err := s.pipeline.StoreDecision(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

type updateDecisionRequest struct {
	Rationale *string  `json:"rationale"`
	Context   *string  `json:"context"`
	Tags      []string `json:"tags"`
	ProjectID *string  `json:"project_id"`
}

func (s *Server) handleUpdateDecision(w http.ResponseWriter, r *http.Request) {
	var req updateDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.store.UpdateDecision(r.Context(), r.PathValue("id"), store.DecisionUpdate{
		Rationale: req.Rationale,
		Context:   req.Context,
		Tags:      req.Tags,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// ------ tasks ------

type createTaskRequest struct {
	AgentID     string     `json:"agent_id"`
	ProjectID   *string    `json:"project_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	Priority    *int       `json:"priority"`
	Assignee    *string    `json:"assignee"`
	DueDate     *time.Time `json:"due_date"`
	SessionID   *string    `json:"session_id"`
	Tags        []string   `json:"tags"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title == "" {
		s.writeError(w, r, badRequest("title is required"))
		return
	}
	if req.Status != "" && !types.ValidTaskStatus(req.Status) {
		s.writeError(w, r, badRequest("invalid task status %q", req.Status))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	task := &types.Task{
		AgentID:     agentID,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate,
		SessionID:   req.SessionID,
		Tags:        req.Tags,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if err := s.pipeline.StoreTask(r.Context(), task); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, task)
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *int       `json:"priority"`
	Assignee    *string    `json:"assignee"`
	DueDate     *time.Time `json:"due_date"`
	BlockedBy   *string    `json:"blocked_by"`
	ProjectID   *string    `json:"project_id"`
	Tags        []string   `json:"tags"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Status != nil && !types.ValidTaskStatus(*req.Status) {
		s.writeError(w, r, badRequest("invalid task status %q", *req.Status))
		return
	}
	upd := store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate,
		BlockedBy:   req.BlockedBy,
		ProjectID:   req.ProjectID,
		Tags:        req.Tags,
	}
	if req.Title != nil && s.embedder != nil {
		if vec, err := s.embedder.Embed(r.Context(), *req.Title); err == nil {
			upd.Embedding = vec
		}
	}
	task, err := s.store.UpdateTask(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

// ------ events ------

type createEventRequest struct {
	AgentID     string     `json:"agent_id"`
	ProjectID   *string    `json:"project_id"`
	Title       string     `json:"title"`
	EventType   string     `json:"event_type"`
	Description *string    `json:"description"`
	Outcome     *string    `json:"outcome"`
	CausedBy    *string    `json:"caused_by"`
	Severity    string     `json:"severity"`
	SessionID   *string    `json:"session_id"`
	OccurredAt  *time.Time `json:"occurred_at"`
	Tags        []string   `json:"tags"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title == "" {
		s.writeError(w, r, badRequest("title is required"))
		return
	}
	if req.Severity != "" && !types.ValidSeverity(req.Severity) {
		s.writeError(w, r, badRequest("invalid severity %q", req.Severity))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev := &types.Event{
		AgentID:     agentID,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		EventType:   req.EventType,
		Description: req.Description,
		Outcome:     req.Outcome,
		CausedBy:    req.CausedBy,
		Severity:    req.Severity,
		SessionID:   req.SessionID,
		Tags:        req.Tags,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	if err := s.pipeline.StoreEvent(r.Context(), ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ev)
}

type updateEventRequest struct {
	Description *string    `json:"description"`
	Outcome     *string    `json:"outcome"`
	Severity    *string    `json:"severity"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	Tags        []string   `json:"tags"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req updateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Severity != nil && !types.ValidSeverity(*req.Severity) {
		s.writeError(w, r, badRequest("invalid severity %q", *req.Severity))
		return
	}
	ev, err := s.store.UpdateEvent(r.Context(), r.PathValue("id"), store.EventUpdate{
		Description: req.Description,
		Outcome:     req.Outcome,
		Severity:    req.Severity,
		ResolvedAt:  req.ResolvedAt,
		Tags:        req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

// ------ projects ------

type createProjectRequest struct {
	AgentID     string                 `json:"agent_id"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Status      string                 `json:"status"`
	Tags        []string               `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, badRequest("name is required"))
		return
	}
	if req.Slug == "" {
		req.Slug = types.Slugify(req.Name)
	}
	if !types.ValidSlug(req.Slug) {
		s.writeError(w, r, badRequest("invalid slug %q", req.Slug))
		return
	}
	if req.Status != "" && !types.ValidProjectStatus(req.Status) {
		s.writeError(w, r, badRequest("invalid project status %q", req.Status))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := &types.Project{
		AgentID:     agentID,
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	}
	if err := s.store.InsertProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

type updateProjectRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Status      *string                `json:"status"`
	Tags        []string               `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Status != nil && !types.ValidProjectStatus(*req.Status) {
		s.writeError(w, r, badRequest("invalid project status %q", *req.Status))
		return
	}
	p, err := s.store.UpdateProject(r.Context(), r.PathValue("id"), store.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}
