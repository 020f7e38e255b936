package loan

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cschleiden/loanflow/backend"
	redisbackend "github.com/cschleiden/loanflow/backend/redis"
	"github.com/cschleiden/loanflow/backend/sqlite"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/currency"
	"github.com/cschleiden/loanflow/processes"
	"github.com/cschleiden/loanflow/processes/memory"
	"github.com/cschleiden/loanflow/registry"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/cschleiden/loanflow/workflow/executor"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	processID = "process-1"
	initiator = "alice"
)

var rates = currency.StaticRateProvider{
	"USD/EUR": decimal.RequireFromString("0.9"),
	"GBP/EUR": decimal.RequireFromString("1.17"),
}

type countingRates struct {
	calls atomic.Int32
}

func (r *countingRates) Rate(ctx context.Context, from, to currency.Code) (decimal.Decimal, error) {
	r.calls.Add(1)
	return rates.Rate(ctx, from, to)
}

// countingConversions counts invocations of the currency activity
type countingConversions struct {
	inner *currency.Activities
	calls atomic.Int32
}

func (c *countingConversions) ConvertCurrency(ctx context.Context, amount, from, to string) (string, error) {
	c.calls.Add(1)
	return c.inner.ConvertCurrency(ctx, amount, from, to)
}

// noCache never keeps executors, every workflow task replays the full history
type noCache struct {
	gets atomic.Int32
}

var _ executor.ExecutorCache = (*noCache)(nil)

func (c *noCache) Store(_ context.Context, _ *core.WorkflowInstance, e executor.WorkflowExecutor) error {
	e.Close()
	return nil
}

func (c *noCache) Evict(context.Context, *core.WorkflowInstance) error {
	return nil
}

func (c *noCache) Get(context.Context, *core.WorkflowInstance) (executor.WorkflowExecutor, bool, error) {
	c.gets.Add(1)
	return nil, false, nil
}

func (c *noCache) StartEviction(context.Context) {}

type harness struct {
	svc         *memory.Service
	c           *client.Client
	rates       *countingRates
	conversions *countingConversions
}

type harnessOptions struct {
	backend backend.Backend
	cache   executor.ExecutorCache

	// Data the applicant or approver enters when completing a task
	replies map[processes.TaskDefinitionCode]processes.TaskData
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	b := opts.backend
	if b == nil {
		sb := sqlite.NewInMemoryBackend()
		t.Cleanup(func() { sb.Close() })
		b = sb
	}

	h := &harness{
		svc:   memory.New(),
		c:     client.New(b),
		rates: &countingRates{},
	}
	h.conversions = &countingConversions{
		inner: &currency.Activities{Converter: currency.NewConverter(h.rates)},
	}

	h.svc.AddProcess(&processes.Process{ID: processID, InitiatorID: initiator})

	h.svc.OnTaskCreated(func(task *processes.Task) {
		if data, ok := opts.replies[task.TaskDefinitionCode]; ok {
			assert.NoError(t, h.svc.CompleteTask(task.ID, data))
		}
	})
	h.svc.OnTaskCompleted(func(task *processes.Task) {
		assert.NoError(t, SignalTaskCompleted(context.Background(), h.c, task.ProcessID, task.ID))
	})

	options := worker.DefaultOptions
	options.WorkflowPollingInterval = 10 * time.Millisecond
	options.ActivityPollingInterval = 10 * time.Millisecond
	options.WorkflowExecutorCache = opts.cache

	w := worker.New(b, &options)
	require.NoError(t, w.RegisterWorkflow(LoanWorkflow))
	require.NoError(t, w.RegisterActivity(&Activities{Service: h.svc}))
	require.NoError(t, w.RegisterActivity(h.conversions.ConvertCurrency, registry.WithName("ConvertCurrency")))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.WaitForCompletion())
	})

	return h
}

func (h *harness) run(t *testing.T) (WorkflowResponse, error) {
	t.Helper()

	ctx := context.Background()

	wfi, err := Start(ctx, h.c, processID)
	require.NoError(t, err)

	return client.GetWorkflowResult[WorkflowResponse](ctx, h.c, wfi, 10*time.Second)
}

func (h *harness) taskCodes() []processes.TaskDefinitionCode {
	var codes []processes.TaskDefinitionCode
	for _, task := range h.svc.Tasks(processID) {
		codes = append(codes, task.TaskDefinitionCode)
	}

	return codes
}

func application(cur, amount string) processes.TaskData {
	return processes.TaskData{
		processes.DataCurrency:  cur,
		processes.DataAmount:    amount,
		processes.DataFirstName: "Ada",
		processes.DataLastName:  "Lovelace",
	}
}

func Test_LoanWorkflow(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T)
	}{
		{
			name: "small loan in USD is granted without approval",
			f: func(t *testing.T) {
				h := newHarness(t, harnessOptions{
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("USD", "1000"),
					},
				})

				r, err := h.run(t)
				require.NoError(t, err)
				require.Equal(t, MessageOK, r.Message)

				require.Equal(t, []processes.TaskDefinitionCode{
					processes.TaskLoanApplication,
					processes.TaskNotificationGranted,
				}, h.taskCodes())

				tasks := h.svc.Tasks(processID)
				require.Equal(t, initiator, tasks[1].OwnerID)
				require.Equal(t, int32(1), h.rates.calls.Load())

				p, err := h.svc.RetrieveProcess(context.Background(), processID)
				require.NoError(t, err)
				require.Equal(t, processes.ProcessStateCompleted, p.State)
				require.Equal(t, "Ada", p.Metadata[processes.DataFirstName])
				require.Equal(t, "Lovelace", p.Metadata[processes.DataLastName])
			},
		},
		{
			name: "large loan in EUR is rejected by approver",
			f: func(t *testing.T) {
				h := newHarness(t, harnessOptions{
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("EUR", "10000"),
						processes.TaskApproveLoan:     {processes.DataApproval: "NO"},
					},
				})

				r, err := h.run(t)
				require.NoError(t, err)
				require.Equal(t, MessageOK, r.Message)

				require.Equal(t, []processes.TaskDefinitionCode{
					processes.TaskLoanApplication,
					processes.TaskApproveLoan,
					processes.TaskNotificationRejection,
				}, h.taskCodes())

				approval := h.svc.Tasks(processID)[1]
				require.Equal(t, "10000", approval.Data.String(processes.DataAmount))
				require.Equal(t, "Ada", approval.Data.String(processes.DataFirstName))
				require.Equal(t, "Lovelace", approval.Data.String(processes.DataLastName))

				// EUR amounts are not converted
				require.Zero(t, h.rates.calls.Load())
				require.Zero(t, h.conversions.calls.Load())
			},
		},
		{
			name: "large loan in GBP is granted by approver",
			f: func(t *testing.T) {
				h := newHarness(t, harnessOptions{
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("GBP", "6000"),
						processes.TaskApproveLoan:     {processes.DataApproval: "YES"},
					},
				})

				_, err := h.run(t)
				require.NoError(t, err)

				require.Equal(t, []processes.TaskDefinitionCode{
					processes.TaskLoanApplication,
					processes.TaskApproveLoan,
					processes.TaskNotificationGranted,
				}, h.taskCodes())

				approval := h.svc.Tasks(processID)[1]
				require.Equal(t, "7020", approval.Data.String(processes.DataAmount))
			},
		},
		{
			name: "loan at threshold needs no approval",
			f: func(t *testing.T) {
				h := newHarness(t, harnessOptions{
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("EUR", "5000"),
					},
				})

				_, err := h.run(t)
				require.NoError(t, err)

				require.Equal(t, []processes.TaskDefinitionCode{
					processes.TaskLoanApplication,
					processes.TaskNotificationGranted,
				}, h.taskCodes())
			},
		},
		{
			name: "unsupported currency fails without retries",
			f: func(t *testing.T) {
				h := newHarness(t, harnessOptions{
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("JPY", "1000"),
					},
				})

				_, err := h.run(t)
				require.Error(t, err)
				require.True(t, workflow.HasErrorKind(err, currency.KindUnsupportedCurrency), "unexpected error: %v", err)

				require.Equal(t, int32(1), h.conversions.calls.Load())
				require.Equal(t, []processes.TaskDefinitionCode{processes.TaskLoanApplication}, h.taskCodes())

				p, err := h.svc.RetrieveProcess(context.Background(), processID)
				require.NoError(t, err)
				require.Equal(t, processes.ProcessStateRunning, p.State)
			},
		},
		{
			name: "replaying the full history creates every task once",
			f: func(t *testing.T) {
				cache := &noCache{}
				h := newHarness(t, harnessOptions{
					cache: cache,
					replies: map[processes.TaskDefinitionCode]processes.TaskData{
						processes.TaskLoanApplication: application("USD", "10000"),
						processes.TaskApproveLoan:     {processes.DataApproval: "YES"},
					},
				})

				_, err := h.run(t)
				require.NoError(t, err)

				tasks := h.svc.Tasks(processID)
				require.Len(t, tasks, 3)
				require.Equal(t, 3, h.svc.Calls("CreateTask"))

				ids := map[string]bool{}
				for _, task := range tasks {
					ids[task.ID] = true
				}
				require.Len(t, ids, 3)

				// Every workflow task started from a fresh executor
				require.Greater(t, cache.gets.Load(), int32(3))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.f)
	}
}

func Test_LoanWorkflow_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b, err := redisbackend.NewRedisBackend(rdb, redisbackend.WithKeyPrefix("loanflow"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	h := newHarness(t, harnessOptions{
		backend: b,
		replies: map[processes.TaskDefinitionCode]processes.TaskData{
			processes.TaskLoanApplication: application("USD", "1000"),
		},
	})

	r, err := h.run(t)
	require.NoError(t, err)
	require.Equal(t, MessageOK, r.Message)

	require.Equal(t, []processes.TaskDefinitionCode{
		processes.TaskLoanApplication,
		processes.TaskNotificationGranted,
	}, h.taskCodes())
}

func Test_CompletedTasks(t *testing.T) {
	tasks := newCompletedTasks()

	tasks.handle(ProcessItem{ID: "t-1", Type: ProcessItemProcess})
	tasks.handle(ProcessItem{Type: ProcessItemTask})
	require.False(t, tasks.contains("t-1")())

	tasks.handle(ProcessItem{ID: "t-1", Type: ProcessItemTask})
	require.True(t, tasks.contains("t-1")())
	require.False(t, tasks.contains("t-2")())
}

func Test_Classify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"not found", &processes.NotFoundError{Entity: "task", ID: "t-1"}, false},
		{"invalid task", &processes.InvalidTaskError{Reason: "task id is required"}, false},
		{"bad request", &processes.StatusError{StatusCode: http.StatusBadRequest}, false},
		{"unavailable", &processes.StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"transport", context.DeadlineExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.retryable, workflow.CanRetry(classify(tt.err)))
		})
	}

	require.NoError(t, classify(nil))
}
