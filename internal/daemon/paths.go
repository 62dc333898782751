package daemon

import "path/filepath"

// Paths locates the daemon's files inside the state directory
type Paths struct {
	Dir       string
	PIDFile   string
	Socket    string
	LogFile   string
	Registry  string
	ACL       string
	Audit     string
	Forwards  string
	Summaries string
}

// NewPaths returns the standard layout under stateDir (usually ".botpool")
func NewPaths(stateDir string) Paths {
	return Paths{
		Dir:       stateDir,
		PIDFile:   filepath.Join(stateDir, "daemon.pid"),
		Socket:    filepath.Join(stateDir, "daemon.sock"),
		LogFile:   filepath.Join(stateDir, "daemon.log"),
		Registry:  filepath.Join(stateDir, "slots.json"),
		ACL:       filepath.Join(stateDir, "allowed_channels.json"),
		Audit:     filepath.Join(stateDir, "audit.db"),
		Forwards:  filepath.Join(stateDir, "pending_forwards.jsonl"),
		Summaries: filepath.Join(stateDir, "notifications.log"),
	}
}
