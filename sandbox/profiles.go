package sandbox

// profileImports gives the fixed import allowlist for each packages
// profile named in §6. "additional" imports configured on a workflow are
// unioned on top of whichever profile it selects.
var profileImports = map[string][]string{
	"minimal": {
		"strings", "math", "json", "time",
	},
	"standard": {
		"strings", "math", "json", "time",
		"regexp", "bytes", "unicode", "sort", "errors", "fmt",
	},
	"data_science": {
		"strings", "math", "json", "time",
		"regexp", "bytes", "unicode", "sort", "errors", "fmt",
		"random", "csv", "base64",
	},
}

// deniedBuiltins names risor builtins and identifiers that would let code
// escape the sandbox: dynamic evaluation, process/file/network access.
var deniedBuiltins = []string{
	"eval", "exec", "compile", "open", "input",
	"os", "exec_command", "import_module", "__import__",
	"chdir", "getenv", "setenv", "environ",
}

// allowedImportSet returns the effective allowlist for a profile name plus
// any additional imports, defaulting to "minimal" when profile is empty.
func allowedImportSet(profile string, additional []string) map[string]bool {
	if profile == "" {
		profile = "minimal"
	}
	base, ok := profileImports[profile]
	if !ok {
		base = profileImports["minimal"]
	}
	set := make(map[string]bool, len(base)+len(additional))
	for _, name := range base {
		set[name] = true
	}
	for _, name := range additional {
		set[name] = true
	}
	return set
}
