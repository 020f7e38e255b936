// Package memory implements the process service in memory, for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cschleiden/loanflow/processes"
)

type TaskHook func(task *processes.Task)

type Service struct {
	mu sync.Mutex

	processes map[string]*processes.Process
	tasks     map[string]*processes.Task

	// creation order of task ids
	order []string

	// closed when the task with the given id completes
	done map[string]chan struct{}

	calls map[string]int

	onCreated   []TaskHook
	onCompleted []TaskHook
}

var _ processes.Service = (*Service)(nil)

func New() *Service {
	return &Service{
		processes: map[string]*processes.Process{},
		tasks:     map[string]*processes.Task{},
		done:      map[string]chan struct{}{},
		calls:     map[string]int{},
	}
}

// AddProcess stores the given process
func (s *Service) AddProcess(p *processes.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	if c.State == "" {
		c.State = processes.ProcessStateRunning
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}

	s.processes[p.ID] = &c
}

// OnTaskCreated registers a hook called whenever a new task is created
func (s *Service) OnTaskCreated(h TaskHook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onCreated = append(s.onCreated, h)
}

// OnTaskCompleted registers a hook called whenever a task is completed
func (s *Service) OnTaskCompleted(h TaskHook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onCompleted = append(s.onCompleted, h)
}

func (s *Service) CreateTask(ctx context.Context, task *processes.Task) error {
	_, err := s.createTask(task)
	return err
}

func (s *Service) createTask(task *processes.Task) (<-chan struct{}, error) {
	if err := processes.ValidateTask(task); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls["CreateTask"]++

	if _, ok := s.processes[task.ProcessID]; !ok {
		s.mu.Unlock()
		return nil, &processes.NotFoundError{Entity: "process", ID: task.ProcessID}
	}

	// Creation is idempotent by id
	if _, ok := s.tasks[task.ID]; ok {
		done := s.done[task.ID]
		s.mu.Unlock()
		return done, nil
	}

	t := copyTask(task)
	t.State = processes.TaskStateReady
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)

	done := make(chan struct{})
	s.done[t.ID] = done

	hooks := append([]TaskHook(nil), s.onCreated...)
	created := copyTask(t)
	s.mu.Unlock()

	for _, h := range hooks {
		h(created)
	}

	return done, nil
}

func (s *Service) CreateTaskAndWaitFinished(ctx context.Context, task *processes.Task) error {
	done, err := s.createTask(task)
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CompleteTask completes the task, merging data into the task's data elements. Completing a
// completed task again is a no-op.
func (s *Service) CompleteTask(taskID string, data processes.TaskData) error {
	s.mu.Lock()

	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return &processes.NotFoundError{Entity: "task", ID: taskID}
	}

	if t.State == processes.TaskStateCompleted {
		s.mu.Unlock()
		return nil
	}

	if t.Data == nil {
		t.Data = processes.TaskData{}
	}
	for k, v := range data {
		t.Data[k] = v
	}
	t.State = processes.TaskStateCompleted
	close(s.done[taskID])

	hooks := append([]TaskHook(nil), s.onCompleted...)
	completed := copyTask(t)
	s.mu.Unlock()

	for _, h := range hooks {
		h(completed)
	}

	return nil
}

func (s *Service) RetrieveTask(ctx context.Context, taskID string) (*processes.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["RetrieveTask"]++

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, &processes.NotFoundError{Entity: "task", ID: taskID}
	}

	return copyTask(t), nil
}

func (s *Service) RetrieveProcess(ctx context.Context, processID string) (*processes.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["RetrieveProcess"]++

	p, ok := s.processes[processID]
	if !ok {
		return nil, &processes.NotFoundError{Entity: "process", ID: processID}
	}

	return copyProcess(p), nil
}

func (s *Service) SaveProcessMetadata(ctx context.Context, processID, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["SaveProcessMetadata"]++

	p, ok := s.processes[processID]
	if !ok {
		return &processes.NotFoundError{Entity: "process", ID: processID}
	}

	p.Metadata[field] = value

	return nil
}

// PatchProcessMetadata supports add, replace and remove operations on top-level fields
func (s *Service) PatchProcessMetadata(ctx context.Context, processID string, patch []processes.JSONPatchOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["PatchProcessMetadata"]++

	p, ok := s.processes[processID]
	if !ok {
		return &processes.NotFoundError{Entity: "process", ID: processID}
	}

	for _, op := range patch {
		field := strings.TrimPrefix(op.Path, "/")
		if field == "" || strings.Contains(field, "/") {
			return fmt.Errorf("unsupported patch path %q", op.Path)
		}

		switch op.Op {
		case "add", "replace":
			p.Metadata[field] = op.Value
		case "remove":
			delete(p.Metadata, field)
		default:
			return fmt.Errorf("unsupported patch operation %q", op.Op)
		}
	}

	return nil
}

func (s *Service) CompleteProcess(ctx context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["CompleteProcess"]++

	p, ok := s.processes[processID]
	if !ok {
		return &processes.NotFoundError{Entity: "process", ID: processID}
	}

	p.State = processes.ProcessStateCompleted

	return nil
}

// Tasks returns the tasks of the given process in creation order
func (s *Service) Tasks(processID string) []*processes.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r []*processes.Task
	for _, id := range s.order {
		if t := s.tasks[id]; t.ProcessID == processID {
			r = append(r, copyTask(t))
		}
	}

	return r
}

// Calls returns how often the given operation was called
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

func copyTask(t *processes.Task) *processes.Task {
	c := *t
	if t.Data != nil {
		c.Data = make(processes.TaskData, len(t.Data))
		for k, v := range t.Data {
			c.Data[k] = v
		}
	}

	return &c
}

func copyProcess(p *processes.Process) *processes.Process {
	c := *p
	c.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}

	return &c
}
