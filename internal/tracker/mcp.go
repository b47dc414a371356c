package tracker

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
)

// Connector opens a fresh transport to the board's MCP server.
type Connector func(ctx context.Context) (mcp.Transport, error)

// CommandConnector starts name with args and speaks MCP over its stdio.
func CommandConnector(name string, args ...string) Connector {
	return func(context.Context) (mcp.Transport, error) {
		if _, err := exec.LookPath(name); err != nil {
			return nil, errors.NewDependencyError([]string{name})
		}
		return &mcp.CommandTransport{Command: exec.Command(name, args...)}, nil
	}
}

// MCP talks to a board through one lazily opened client session.
type MCP struct {
	connect Connector
	timeout time.Duration
	logger  *logging.Logger

	mu        sync.Mutex
	client    *mcp.Client
	session   *mcp.ClientSession
	projectID string
	// broken stops retrying a connection that already failed this run.
	broken bool
}

var _ Tracker = (*MCP)(nil)

// NewMCP creates a tracker. An empty projectID is discovered from the board on
// first use.
func NewMCP(projectID string, connect Connector, timeout time.Duration, logger *logging.Logger) *MCP {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCP{
		connect:   connect,
		timeout:   timeout,
		logger:    logger.With("component", "tracker"),
		client:    mcp.NewClient(&mcp.Implementation{Name: "foreman", Version: "v1"}, nil),
		projectID: projectID,
	}
}

// ProjectID returns the configured or discovered project.
func (m *MCP) ProjectID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectID
}

// CreateTask creates a task in the project.
func (m *MCP) CreateTask(ctx context.Context, title, description string) string {
	project, ok := m.project(ctx)
	if !ok {
		return ""
	}
	out, err := m.call(ctx, "create_task", map[string]any{
		"project_id":  project,
		"title":       title,
		"description": description,
	})
	if err != nil {
		m.logger.Warn("failed to create task", "title", title, "error", err)
		return ""
	}
	id := firstString(out, "task_id", "id", "task.id")
	if id == "" {
		m.logger.Warn("no task id in create_task response", "response", out)
		return ""
	}
	m.logger.Info("created task", "task_id", id, "title", title)
	return id
}

// UpdateStatus sets a task's status.
func (m *MCP) UpdateStatus(ctx context.Context, taskID, status string) bool {
	if taskID == "" {
		return false
	}
	if _, err := m.call(ctx, "update_task", map[string]any{
		"task_id": taskID,
		"status":  status,
	}); err != nil {
		m.logger.Warn("failed to update task", "task_id", taskID, "status", status, "error", err)
		return false
	}
	m.logger.Debug("updated task", "task_id", taskID, "status", status)
	return true
}

// FindByTitle searches the project's tasks for an exact title match.
func (m *MCP) FindByTitle(ctx context.Context, title string) string {
	project, ok := m.project(ctx)
	if !ok {
		return ""
	}
	out, err := m.call(ctx, "list_tasks", map[string]any{"project_id": project})
	if err != nil {
		m.logger.Warn("failed to list tasks", "error", err)
		return ""
	}
	var id string
	tasksOf(out).ForEach(func(_, task gjson.Result) bool {
		if task.Get("title").String() == title {
			id = firstString(task.Raw, "id", "task_id")
			return false
		}
		return true
	})
	return id
}

// Close ends the MCP session and its server process.
func (m *MCP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}

// project returns the project ID, discovering the first project on the board
// when none is configured.
func (m *MCP) project(ctx context.Context) (string, bool) {
	if id := m.ProjectID(); id != "" {
		return id, true
	}
	out, err := m.call(ctx, "list_projects", map[string]any{})
	if err != nil {
		m.logger.Warn("failed to list projects", "error", err)
		return "", false
	}
	projects := gjson.Get(out, "projects")
	if !projects.Exists() {
		projects = gjson.Parse(out)
	}
	first := projects.Get("0")
	id := first.Get("id").String()
	if id == "" {
		m.logger.Warn("no projects on the task board")
		return "", false
	}
	if n := len(projects.Array()); n > 1 {
		m.logger.Info("multiple projects found, using first", "project", first.Get("name").String(), "count", n)
	}

	m.mu.Lock()
	m.projectID = id
	m.mu.Unlock()
	m.logger.Info("discovered task board project", "project_id", id)
	return id, true
}

// call invokes tool and returns its result as JSON text.
func (m *MCP) call(ctx context.Context, tool string, args map[string]any) (string, error) {
	session, err := m.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", errors.Wrapf(err, "call %s", tool)
	}
	text := resultText(res)
	if res.IsError {
		return "", errors.New(tool + ": " + text)
	}
	return text, nil
}

func (m *MCP) ensureSession(ctx context.Context) (*mcp.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}
	if m.broken {
		return nil, errors.New("task board unavailable")
	}

	transport, err := m.connect(ctx)
	if err == nil {
		m.session, err = m.client.Connect(ctx, transport, nil)
	}
	if err != nil {
		m.broken = true
		return nil, errors.Wrap(err, "connect to task board")
	}
	return m.session, nil
}

// resultText prefers structured content, then the first text block.
func resultText(res *mcp.CallToolResult) string {
	if res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			return string(b)
		}
	}
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return strings.TrimSpace(tc.Text)
		}
	}
	return ""
}

func tasksOf(out string) gjson.Result {
	if tasks := gjson.Get(out, "tasks"); tasks.Exists() {
		return tasks
	}
	return gjson.Parse(out)
}

func firstString(raw string, paths ...string) string {
	for _, p := range paths {
		if v := gjson.Get(raw, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
