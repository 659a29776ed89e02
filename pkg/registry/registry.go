// Package registry maps node types to their processors and config schemas.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
)

type Registry struct {
	logger     *slog.Logger
	processors map[models.NodeType]protocol.NodeProcessor
	schemas    map[models.NodeType]map[string]any
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:     log,
		processors: make(map[models.NodeType]protocol.NodeProcessor),
		schemas:    make(map[models.NodeType]map[string]any),
	}
}

// Register adds a processor for its node type. An optional JSON schema
// constrains node configs of that type at template save time.
func (r *Registry) Register(processor protocol.NodeProcessor, schema map[string]any) {
	r.processors[processor.Type()] = processor

	if schema != nil {
		r.schemas[processor.Type()] = schema
	}
}

// Processor returns the processor registered for the node type.
func (r *Registry) Processor(nodeType models.NodeType) (protocol.NodeProcessor, error) {
	processor, ok := r.processors[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return processor, nil
}

// Types returns every registered node type.
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.processors))
	for nodeType := range r.processors {
		types = append(types, nodeType)
	}

	return types
}

// ValidateNodeConfig validates a node's config against the JSON schema
// registered for its type. Types without a schema accept any config.
func (r *Registry) ValidateNodeConfig(nodeType models.NodeType, config map[string]any) error {
	schema, ok := r.schemas[nodeType]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var details []string
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return fmt.Errorf("node config validation failed for type '%s': %s", nodeType, strings.Join(details, "; "))
	}

	return nil
}

// LoadProcessorPlugins loads NodeProcessor implementations from .so files
// under pluginsPath/processors, each exporting a Processor symbol.
func (r *Registry) LoadProcessorPlugins(pluginsPath string) ([]protocol.NodeProcessor, error) {
	return loadPlugin[protocol.NodeProcessor](r.logger, pluginsPath, "Processor")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s symbol %s has wrong type", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded processor plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
