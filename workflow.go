package strata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the lifecycle state of a workflow execution.
type WorkflowStatus string

const (
	WorkflowWaiting   WorkflowStatus = "Waiting"
	WorkflowExecuting WorkflowStatus = "Executing"
	WorkflowExecuted  WorkflowStatus = "Executed"
	WorkflowCompleted WorkflowStatus = "Completed"
	WorkflowFailed    WorkflowStatus = "Failed"
	WorkflowCancelled WorkflowStatus = "Cancelled"
)

// Terminal reports whether the execution has reached a final state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowExecuted, WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	}
	return false
}

// Succeeded reports whether the execution finished without failure.
func (s WorkflowStatus) Succeeded() bool {
	return s == WorkflowExecuted || s == WorkflowCompleted
}

// WorkflowExecution is a single run of a named workflow on the platform.
type WorkflowExecution struct {
	ID       uuid.UUID      `json:"Id"`
	Workflow string         `json:"WorkflowName,omitempty"`
	Status   WorkflowStatus `json:"Status"`
	Message  string         `json:"Message,omitempty"`
}

// Succeeded reports whether the execution finished without failure.
func (e *WorkflowExecution) Succeeded() bool { return e.Status.Succeeded() }

// StartWorkflowOptions scope a workflow run. Zero values submit the workflow
// against its stored defaults, scheduled to run immediately.
type StartWorkflowOptions struct {
	Contexts     []string
	Scope        string
	EntitySet    string
	ScheduleName string
	Source       string
}

type workflowRequest struct {
	WorkflowName  string   `json:"WorkflowName"`
	WorkspaceName string   `json:"WorkspaceName"`
	Source        string   `json:"Source"`
	ScheduleName  string   `json:"ScheduleName"`
	Contexts      []string `json:"ProcessingContexts"`
	Scope         string   `json:"ProcessingScopeName,omitempty"`
	EntitySet     string   `json:"ProcessingEntitySet,omitempty"`
}

// StartWorkflow submits a run of the named workflow and returns its
// execution handle. The run proceeds on the platform; use AwaitWorkflow to
// block until it settles.
func (c *Client) StartWorkflow(ctx context.Context, name string, opts StartWorkflowOptions) (*WorkflowExecution, error) {
	if name == "" {
		return nil, fmt.Errorf("strata: workflow name is required")
	}
	req := workflowRequest{
		WorkflowName:  name,
		WorkspaceName: c.workspace,
		ScheduleName:  opts.ScheduleName,
		Contexts:      opts.Contexts,
		Scope:         opts.Scope,
		EntitySet:     opts.EntitySet,
		Source:        opts.Source,
	}
	if req.ScheduleName == "" {
		req.ScheduleName = "Now"
	}
	if req.Source == "" {
		req.Source = "by Activity service"
	}
	if req.Contexts == nil {
		req.Contexts = []string{}
	}
	var exec WorkflowExecution
	if err := c.post(ctx, c.route("WorkflowExecution", "AddRequest"), req, &exec); err != nil {
		return nil, err
	}
	if exec.Workflow == "" {
		exec.Workflow = name
	}
	return &exec, nil
}

// WorkflowExecutionState fetches the current state of an execution.
func (c *Client) WorkflowExecutionState(ctx context.Context, id uuid.UUID) (*WorkflowExecution, error) {
	var exec WorkflowExecution
	if err := c.get(ctx, c.route("WorkflowExecution", id.String()), &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// AwaitWorkflow polls an execution until it reaches a terminal state,
// returning that state. Failed and Cancelled are results, not errors; check
// Status on the returned execution. A timeout of zero waits until ctx is
// done; otherwise ErrAwaitTimeout is returned once timeout elapses, wrapped
// with the last observed status.
func (c *Client) AwaitWorkflow(ctx context.Context, id uuid.UUID, pollInterval, timeout time.Duration) (*WorkflowExecution, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	exec, err := c.WorkflowExecutionState(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return exec, nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return exec, ctx.Err()
		case <-deadline:
			return exec, fmt.Errorf("%w: execution %s still %s after %s",
				ErrAwaitTimeout, id, exec.Status, timeout)
		case <-ticker.C:
			next, err := c.WorkflowExecutionState(ctx, id)
			if err != nil {
				return exec, err
			}
			exec = next
			if exec.Status.Terminal() {
				return exec, nil
			}
		}
	}
}

// RunWorkflow starts a workflow and waits for it to settle.
func (c *Client) RunWorkflow(ctx context.Context, name string, opts StartWorkflowOptions, pollInterval, timeout time.Duration) (*WorkflowExecution, error) {
	exec, err := c.StartWorkflow(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return c.AwaitWorkflow(ctx, exec.ID, pollInterval, timeout)
}
