package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Task-Agent/agent/store"
)

const (
	ToolAddTask      = "add_task"
	ToolListTasks    = "list_tasks"
	ToolCompleteTask = "complete_task"
	ToolUpdateTask   = "update_task"
	ToolDeleteTask   = "delete_task"
)

// TaskStore is the slice of the domain store the task tools need.
type TaskStore interface {
	CreateTask(ctx context.Context, ownerID, title, description string) (*store.Task, error)
	ListTasks(ctx context.Context, ownerID string, filter store.TaskFilter) ([]store.Task, error)
	GetTask(ctx context.Context, ownerID string, id int64) (*store.Task, error)
	FindTasksByTitle(ctx context.Context, ownerID, query string) ([]store.Task, error)
	CompleteTask(ctx context.Context, ownerID string, id int64) (*store.Task, bool, error)
	UpdateTask(ctx context.Context, ownerID string, id int64, patch store.TaskPatch) (*store.Task, error)
	DeleteTask(ctx context.Context, ownerID string, id int64) (*store.Task, error)
}

// maxTaskID is the largest id a JSON number carries exactly.
const maxTaskID = 1<<53 - 1

var (
	fieldTaskID = Field{
		Name:    "task_id",
		Type:    TypeInteger,
		Desc:    "Numeric id of the task",
		Minimum: minimum(1),
		Maximum: maximum(maxTaskID),
	}
	fieldTitleMatch = Field{
		Name:      "title",
		Type:      TypeString,
		Desc:      "Part of the task title, used when the id is unknown",
		MinLength: 1,
		MaxLength: store.MaxTitleLength,
	}
)

func TaskTools(s TaskStore) []Definition {
	return []Definition{
		{
			Name:        ToolAddTask,
			Description: "Create a new task for the user.",
			Schema: Schema{Fields: []Field{
				{Name: "title", Type: TypeString, Desc: "Short task title", Required: true, MinLength: 1, MaxLength: store.MaxTitleLength},
				{Name: "description", Type: TypeString, Desc: "Optional details", MaxLength: store.MaxDescriptionLength},
			}},
			Handler: addTask(s),
		},
		{
			Name:        ToolListTasks,
			Description: "List the user's tasks, optionally filtered by status.",
			Schema: Schema{Fields: []Field{
				{Name: "status", Type: TypeString, Desc: "Which tasks to return", Enum: []string{
					string(store.TaskFilterAll), string(store.TaskFilterPending), string(store.TaskFilterCompleted),
				}},
			}},
			ReadOnly: true,
			Handler:  listTasks(s),
		},
		{
			Name:        ToolCompleteTask,
			Description: "Mark a task as completed. Identify it by task_id or by title.",
			Schema:      Schema{Fields: []Field{fieldTaskID, fieldTitleMatch}, AnyOf: []string{"task_id", "title"}},
			Handler:     completeTask(s),
		},
		{
			Name:        ToolUpdateTask,
			Description: "Change the title or description of a task. Identify it by task_id or by match.",
			Schema: Schema{
				Fields: []Field{
					fieldTaskID,
					{Name: "match", Type: TypeString, Desc: "Part of the current title, used when the id is unknown", MinLength: 1, MaxLength: store.MaxTitleLength},
					{Name: "title", Type: TypeString, Desc: "New title", MinLength: 1, MaxLength: store.MaxTitleLength},
					{Name: "description", Type: TypeString, Desc: "New description", MaxLength: store.MaxDescriptionLength},
				},
				AnyOf: []string{"task_id", "match"},
			},
			Handler: updateTask(s),
		},
		{
			Name:        ToolDeleteTask,
			Description: "Permanently delete a task. Identify it by task_id or by title.",
			Schema:      Schema{Fields: []Field{fieldTaskID, fieldTitleMatch}, AnyOf: []string{"task_id", "title"}},
			Handler:     deleteTask(s),
		},
	}
}

func addTask(s TaskStore) contractx.ToolHandler {
	return func(ctx context.Context, owner contractx.Owner, in contractx.ToolInput) (any, error) {
		title, _ := in.String("title")
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be blank", contractx.ErrValidation)
		}
		desc, _ := in.String("description")

		task, err := s.CreateTask(ctx, owner.ID(), title, strings.TrimSpace(desc))
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil
	}
}

func listTasks(s TaskStore) contractx.ToolHandler {
	return func(ctx context.Context, owner contractx.Owner, in contractx.ToolInput) (any, error) {
		filter := store.TaskFilterAll
		if status, ok := in.String("status"); ok {
			filter = store.TaskFilter(status)
		}
		tasks, err := s.ListTasks(ctx, owner.ID(), filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": filter, "count": len(tasks), "tasks": tasks}, nil
	}
}

func completeTask(s TaskStore) contractx.ToolHandler {
	return func(ctx context.Context, owner contractx.Owner, in contractx.ToolInput) (any, error) {
		target, err := resolveTask(ctx, s, owner, in, "title")
		if err != nil {
			return nil, err
		}
		if target.Completed {
			return map[string]any{"task": target, "already_complete": true}, nil
		}
		task, changed, err := s.CompleteTask(ctx, owner.ID(), target.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task, "already_complete": !changed}, nil
	}
}

func updateTask(s TaskStore) contractx.ToolHandler {
	return func(ctx context.Context, owner contractx.Owner, in contractx.ToolInput) (any, error) {
		var patch store.TaskPatch
		if title, ok := in.String("title"); ok {
			title = strings.TrimSpace(title)
			if title == "" {
				return nil, fmt.Errorf("%w: title must not be blank", contractx.ErrValidation)
			}
			patch.Title = &title
		}
		if desc, ok := in.String("description"); ok {
			desc = strings.TrimSpace(desc)
			patch.Description = &desc
		}
		if patch.Title == nil && patch.Description == nil {
			return nil, fmt.Errorf("%w: nothing to update; provide title or description", contractx.ErrValidation)
		}

		target, err := resolveTask(ctx, s, owner, in, "match")
		if err != nil {
			return nil, err
		}
		task, err := s.UpdateTask(ctx, owner.ID(), target.ID, patch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil
	}
}

func deleteTask(s TaskStore) contractx.ToolHandler {
	return func(ctx context.Context, owner contractx.Owner, in contractx.ToolInput) (any, error) {
		target, err := resolveTask(ctx, s, owner, in, "title")
		if err != nil {
			return nil, err
		}
		task, err := s.DeleteTask(ctx, owner.ID(), target.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task, "deleted": true}, nil
	}
}

// resolveTask finds the task an invocation refers to. An explicit id wins.
// Otherwise the title query must identify exactly one task: a single exact
// (case-insensitive) match is taken, several candidates are ambiguous.
func resolveTask(ctx context.Context, s TaskStore, owner contractx.Owner, in contractx.ToolInput, titleKey string) (*store.Task, error) {
	if in.Has("task_id") {
		id, ok := in.Int("task_id")
		if !ok || id < 1 {
			return nil, fmt.Errorf("%w: task_id must be a positive integer", contractx.ErrValidation)
		}
		return s.GetTask(ctx, owner.ID(), id)
	}

	query, _ := in.String(titleKey)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: task_id or %s is required", contractx.ErrValidation, titleKey)
	}
	matches, err := s.FindTasksByTitle(ctx, owner.ID(), query)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no task matches %q", contractx.ErrNotFound, query)
	case 1:
		return &matches[0], nil
	}

	exact := make([]store.Task, 0, 1)
	for _, t := range matches {
		if strings.EqualFold(strings.TrimSpace(t.Title), query) {
			exact = append(exact, t)
		}
	}
	if len(exact) == 1 {
		return &exact[0], nil
	}
	pool := matches
	if len(exact) > 1 {
		pool = exact
	}
	candidates := make([]contractx.Candidate, 0, len(pool))
	for _, t := range pool {
		candidates = append(candidates, contractx.Candidate{ID: t.ID, Title: t.Title})
	}
	return nil, &contractx.AmbiguityError{Query: query, Candidates: candidates}
}
