// Package rest implements the process service on top of its REST API.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cschleiden/loanflow/processes"
	"github.com/go-resty/resty/v2"
)

type Options struct {
	Endpoint     string
	ClientID     string
	ClientSecret string

	// Timeout bounds each request. Create-and-wait requests are only bounded by their context.
	Timeout time.Duration
}

type Client struct {
	client *resty.Client
}

var _ processes.Service = (*Client)(nil)

func New(options Options) *Client {
	client := resty.New().
		SetBaseURL(options.Endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if options.ClientID != "" {
		client.SetBasicAuth(options.ClientID, options.ClientSecret)
	}

	if options.Timeout > 0 {
		client.SetTimeout(options.Timeout)
	}

	return &Client{client: client}
}

func (c *Client) CreateTask(ctx context.Context, task *processes.Task) error {
	if err := processes.ValidateTask(task); err != nil {
		return err
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(task).
		Post("/tasks")
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	// Task with this id already exists
	if res.StatusCode() == http.StatusConflict {
		return nil
	}

	return checkResponse(res, "task", task.ID)
}

func (c *Client) CreateTaskAndWaitFinished(ctx context.Context, task *processes.Task) error {
	if err := processes.ValidateTask(task); err != nil {
		return err
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(task).
		Post("/tasks/~actions/create-and-wait")
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	return checkResponse(res, "task", task.ID)
}

func (c *Client) RetrieveTask(ctx context.Context, taskID string) (*processes.Task, error) {
	var task processes.Task

	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", taskID).
		SetResult(&task).
		Get("/tasks/{id}")
	if err != nil {
		return nil, fmt.Errorf("retrieving task: %w", err)
	}

	if err := checkResponse(res, "task", taskID); err != nil {
		return nil, err
	}

	return &task, nil
}

func (c *Client) RetrieveProcess(ctx context.Context, processID string) (*processes.Process, error) {
	var process processes.Process

	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", processID).
		SetResult(&process).
		Get("/processes/{id}")
	if err != nil {
		return nil, fmt.Errorf("retrieving process: %w", err)
	}

	if err := checkResponse(res, "process", processID); err != nil {
		return nil, err
	}

	return &process, nil
}

func (c *Client) SaveProcessMetadata(ctx context.Context, processID, field string, value any) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"id": processID, "field": field}).
		SetBody(map[string]any{"value": value}).
		Put("/processes/{id}/metadata/{field}")
	if err != nil {
		return fmt.Errorf("saving process metadata: %w", err)
	}

	return checkResponse(res, "process", processID)
}

func (c *Client) PatchProcessMetadata(ctx context.Context, processID string, patch []processes.JSONPatchOperation) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", processID).
		SetHeader("Content-Type", "application/json-patch+json").
		SetBody(patch).
		Patch("/processes/{id}/metadata")
	if err != nil {
		return fmt.Errorf("patching process metadata: %w", err)
	}

	return checkResponse(res, "process", processID)
}

func (c *Client) CompleteProcess(ctx context.Context, processID string) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", processID).
		Post("/processes/{id}/~actions/complete")
	if err != nil {
		return fmt.Errorf("completing process: %w", err)
	}

	return checkResponse(res, "process", processID)
}

func checkResponse(res *resty.Response, entity, id string) error {
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return &processes.NotFoundError{Entity: entity, ID: id}
	case res.IsError():
		return &processes.StatusError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	return nil
}
