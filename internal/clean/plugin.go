package clean

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
)

// PluginName is reported by esbuild for messages raised by the plugin
const PluginName = "clean"

// Plugin returns an esbuild plugin that cleans on build start and end.
// esbuild writes output files before end callbacks run, so end patterns see
// the fresh output. ctx supplies the context of the running build and may be
// nil.
func (c *Cleaner) Plugin(ctx func() context.Context) api.Plugin {
	if ctx == nil {
		ctx = context.Background
	}

	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				_, err := c.CleanStart(ctx())
				return api.OnStartResult{}, err
			})

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				_, err := c.CleanEnd(ctx())
				return api.OnEndResult{}, err
			})
		},
	}
}
