package tools

// Tool name constants. Referenced by the permission engine's mode rules and
// the compaction layer's eviction allow-list.
const (
	ToolReadFile    = "read_file"
	ToolListFiles   = "list_files"
	ToolSearchFiles = "search_files"
	ToolEditFile    = "edit_file"
	ToolShell       = "shell"
)

// ReadOnlyNames lists the tools that never modify state. Plan mode allows
// exactly this set.
func ReadOnlyNames() map[string]bool {
	return map[string]bool{
		ToolReadFile:    true,
		ToolListFiles:   true,
		ToolSearchFiles: true,
	}
}

// EditNames lists the file-modification tools auto-allowed in acceptEdits
// mode.
func EditNames() map[string]bool {
	return map[string]bool{
		ToolEditFile: true,
	}
}

// EvictableNames lists the tools whose wrapped results may be evicted during
// compaction. Their full output is recoverable by re-running the tool.
func EvictableNames() map[string]bool {
	return map[string]bool{
		ToolReadFile:    true,
		ToolListFiles:   true,
		ToolSearchFiles: true,
		ToolEditFile:    true,
		ToolShell:       true,
	}
}
