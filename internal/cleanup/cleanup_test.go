package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cmsrelay/internal/logger"
)

func TestCleanupManager_RunsInOrder(t *testing.T) {
	cm := NewCleanupManager(logger.Discard())

	var order []string
	var succeeded []string
	step := func(name string) CleanupOperation {
		return CleanupOperation{
			Name: name,
			Executor: func(context.Context) error {
				order = append(order, name)
				return nil
			},
			OnSuccess: func() { succeeded = append(succeeded, name) },
		}
	}

	results, err := cm.Run(context.Background(), []CleanupOperation{step("janitor"), step("server"), step("store")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if strings.Join(order, ",") != "janitor,server,store" {
		t.Errorf("order = %v", order)
	}
	if len(succeeded) != 3 {
		t.Errorf("OnSuccess called %d times, want 3", len(succeeded))
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("step %s failed", r.Step)
		}
	}
}

func TestCleanupManager_ContinuesAfterFailure(t *testing.T) {
	cm := NewCleanupManager(logger.Discard())
	boom := errors.New("shutdown timed out")

	var onError error
	ranLast := false
	results, err := cm.Run(context.Background(), []CleanupOperation{
		{
			Name:     "server",
			Executor: func(context.Context) error { return boom },
			OnError:  func(err error) { onError = err },
		},
		{
			Name: "store",
			Executor: func(context.Context) error {
				ranLast = true
				return nil
			},
		},
	})

	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want wrapping %v", err, boom)
	}
	if onError != boom {
		t.Errorf("OnError got %v", onError)
	}
	if !ranLast {
		t.Error("step after failure did not run")
	}
	if results[0].Success || results[0].Error != boom.Error() {
		t.Errorf("results[0] = %+v", results[0])
	}

	success, failed, _ := cm.GetSummary()
	if success != 1 || failed != 1 {
		t.Errorf("GetSummary() = %d, %d; want 1, 1", success, failed)
	}
	if len(cm.GetResults()) != 2 {
		t.Errorf("GetResults() len = %d", len(cm.GetResults()))
	}
}

func TestCleanupManager_PassesContext(t *testing.T) {
	cm := NewCleanupManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cm.Run(ctx, []CleanupOperation{{
		Name:     "server",
		Executor: func(ctx context.Context) error { return ctx.Err() },
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
