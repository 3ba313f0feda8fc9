package process

import (
	"errors"
	"strings"
)

// Spec describes one child launch. It is rebuilt for every start so that
// configuration and environment edits apply to the next run.
type Spec struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`               // executable, resolved like exec.LookPath
	Args    []string `json:"args"`               // arguments after the executable
	WorkDir string   `json:"work_dir,omitempty"` // optional working dir
	Env     []string `json:"env,omitempty"`      // full child environment; nil inherits ours
	Dirs    []string `json:"dirs,omitempty"`     // created (0o750) before the executable check
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process spec: name is required")
	}
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("process spec: path is required")
	}
	return nil
}

// CommandLine renders the launch for log lines and status output.
func (s Spec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, s.Path)
	for _, a := range s.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
