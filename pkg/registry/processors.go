// Package registry provides node processor registration for the engine.
package registry

import (
	"log/slog"

	"github.com/taskhive/flowengine/pkg/nodes/apicall"
	"github.com/taskhive/flowengine/pkg/nodes/approval"
	"github.com/taskhive/flowengine/pkg/nodes/conditionnode"
	"github.com/taskhive/flowengine/pkg/nodes/delay"
	"github.com/taskhive/flowengine/pkg/nodes/email"
	"github.com/taskhive/flowengine/pkg/nodes/end"
	"github.com/taskhive/flowengine/pkg/nodes/start"
	"github.com/taskhive/flowengine/pkg/nodes/task"
	"github.com/taskhive/flowengine/pkg/protocol"
)

// RegisterDefaultProcessors registers all built-in node processors with the
// registry, wired to the provided collaborators.
func (r *Registry) RegisterDefaultProcessors(
	store protocol.TaskStore,
	dispatcher protocol.NotificationDispatcher,
	httpClient protocol.HTTPDoer,
	logger *slog.Logger,
) {
	r.Register(start.NewProcessor(), nil)
	r.Register(end.NewProcessor(dispatcher, logger), nil)
	r.Register(task.NewProcessor(store), task.Schema())
	r.Register(email.NewProcessor(dispatcher, logger), email.Schema())
	r.Register(apicall.NewProcessor(httpClient), apicall.Schema())
	r.Register(conditionnode.NewProcessor(), conditionnode.Schema())
	r.Register(delay.NewProcessor(), delay.Schema())
	r.Register(approval.NewProcessor(dispatcher, logger), approval.Schema())
}
