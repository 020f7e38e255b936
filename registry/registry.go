package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/fn"
	wf "github.com/cschleiden/loanflow/workflow"
)

type Registry struct {
	sync.Mutex

	workflowMap map[string]wf.Workflow
	activityMap map[string]wf.Activity
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		workflowMap: make(map[string]wf.Workflow),
		activityMap: make(map[string]wf.Activity),
	}
}

type registerConfig struct {
	Name string
}

type RegisterOption func(*registerConfig)

// WithName registers a workflow or activity function under the given name instead of its function name
func WithName(name string) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.Name = name
	}
}

func applyRegisterOptions(opts []RegisterOption) registerConfig {
	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func (r *Registry) RegisterWorkflow(workflow wf.Workflow, opts ...RegisterOption) error {
	cfg := applyRegisterOptions(opts)

	wfType := reflect.TypeOf(workflow)
	if wfType == nil || wfType.Kind() != reflect.Func {
		return &ErrInvalidWorkflow{"workflow is not a function"}
	}

	if wfType.NumIn() == 0 {
		return &ErrInvalidWorkflow{"workflow does not accept context parameter"}
	}

	if !args.IsWorkflowContext(wfType.In(0)) {
		return &ErrInvalidWorkflow{"workflow does not accept workflow.Context as first parameter"}
	}

	if wfType.NumOut() == 0 {
		return &ErrInvalidWorkflow{"workflow must return error"}
	}

	if wfType.NumOut() > 2 {
		return &ErrInvalidWorkflow{"workflow must return at most two values"}
	}

	if !wfType.Out(wfType.NumOut() - 1).Implements(errType) {
		return &ErrInvalidWorkflow{"workflow must return error as last return value"}
	}

	name := cfg.Name
	if name == "" {
		name = fn.Name(workflow)
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.workflowMap[name]; ok {
		return &ErrWorkflowAlreadyRegistered{fmt.Sprintf("workflow with name %q already registered", name)}
	}
	r.workflowMap[name] = workflow

	return nil
}

// RegisterActivity registers an activity function, or all exported methods of a struct pointer. Methods are
// registered under their method name.
func (r *Registry) RegisterActivity(activity wf.Activity, opts ...RegisterOption) error {
	cfg := applyRegisterOptions(opts)

	t := reflect.TypeOf(activity)
	if t == nil {
		return &ErrInvalidActivity{"activity is nil"}
	}

	// Activities on struct
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		return r.registerActivitiesFromStruct(activity)
	}

	if err := checkActivity(t); err != nil {
		return err
	}

	name := cfg.Name
	if name == "" {
		name = fn.Name(activity)
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.activityMap[name]; ok {
		return &ErrActivityAlreadyRegistered{fmt.Sprintf("activity with name %q already registered", name)}
	}
	r.activityMap[name] = activity

	return nil
}

func (r *Registry) registerActivitiesFromStruct(a any) error {
	v := reflect.ValueOf(a)
	t := v.Type()

	activities := make(map[string]any)

	// Method sets of pointers only contain exported methods
	for i := 0; i < v.NumMethod(); i++ {
		mv := v.Method(i)
		mt := t.Method(i)

		if err := checkActivity(mv.Type()); err != nil {
			return fmt.Errorf("method %s: %w", mt.Name, err)
		}

		activities[mt.Name] = mv.Interface()
	}

	r.Lock()
	defer r.Unlock()

	for name := range activities {
		if _, ok := r.activityMap[name]; ok {
			return &ErrActivityAlreadyRegistered{fmt.Sprintf("activity with name %q already registered", name)}
		}
	}

	for name, activity := range activities {
		r.activityMap[name] = activity
	}

	return nil
}

func checkActivity(actType reflect.Type) error {
	if actType.Kind() != reflect.Func {
		return &ErrInvalidActivity{"activity not a func"}
	}

	if actType.NumOut() == 0 || actType.NumOut() > 2 {
		return &ErrInvalidActivity{"activity must return (error) or (result, error)"}
	}

	if !actType.Out(actType.NumOut() - 1).Implements(errType) {
		return &ErrInvalidActivity{"activity must return error as last return value"}
	}

	return nil
}

func (r *Registry) GetWorkflow(name string) (wf.Workflow, error) {
	r.Lock()
	defer r.Unlock()

	if workflow, ok := r.workflowMap[name]; ok {
		return workflow, nil
	}

	return nil, &ErrNotFound{fmt.Sprintf("workflow %s not found", name)}
}

func (r *Registry) GetActivity(name string) (wf.Activity, error) {
	r.Lock()
	defer r.Unlock()

	if activity, ok := r.activityMap[name]; ok {
		return activity, nil
	}

	return nil, &ErrNotFound{fmt.Sprintf("activity %s not found", name)}
}
