package tools

// DefaultRegistry returns a registry holding all builtin tools, rooted at
// workDir.
func DefaultRegistry(workDir string) *Registry {
	r := NewRegistry()
	r.Register(NewReadFileTool(workDir))
	r.Register(NewListFilesTool(workDir))
	r.Register(NewSearchFilesTool(workDir))
	r.Register(NewEditFileTool(workDir))
	r.Register(NewShellTool(workDir))
	return r
}
