// Package compensate collects undo actions for multi-step setup operations
// so a mid-sequence failure can roll back the steps that already succeeded.
package compensate

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/logger"
)

// Action undoes one completed step.
type Action struct {
	Name string
	Run  func(ctx context.Context) error
}

// List accumulates compensating actions in completion order.
type List struct {
	actions []Action
}

// Add registers an undo action for a step that just succeeded.
func (l *List) Add(name string, run func(ctx context.Context) error) {
	l.actions = append(l.actions, Action{Name: name, Run: run})
}

// Run executes the registered actions in reverse order. Each action is
// best-effort: a failing undo is logged and the remaining actions still
// run. Compensation never masks the primary error, so Run returns nothing.
func (l *List) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	for i := len(l.actions) - 1; i >= 0; i-- {
		a := l.actions[i]
		if err := a.Run(ctx); err != nil {
			log.Warn("compensating action failed",
				zap.String("action", a.Name),
				zap.Error(err))
		}
	}
}

// Len returns the number of registered actions.
func (l *List) Len() int { return len(l.actions) }
