package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Info describes one on-disk session found by ListAllSessions.
type Info struct {
	SessionID   string
	Project     string
	ProjectPath string
	ModTime     time.Time
	Name        string
	Description string
}

// DateStr formats the last-activity time for list display.
func (i Info) DateStr() string { return i.ModTime.Format("01/02 15:04") }

// DataDir returns the parley home directory (~/.parley), overridable for tests
// through PARLEY_HOME.
func DataDir() string {
	if dir := os.Getenv("PARLEY_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}

// projectsDir returns the directory where per-project session trees live.
func projectsDir() string { return filepath.Join(DataDir(), "projects") }

// reconstructProjectPath decodes a project directory name back to a
// filesystem path. Project paths are encoded by replacing path separators
// with hyphens, e.g. -home-user-dev-project -> /home/user/dev/project.
func reconstructProjectPath(encoded string) string {
	if !strings.HasPrefix(encoded, "-") {
		return encoded
	}
	return "/" + strings.ReplaceAll(strings.TrimPrefix(encoded, "-"), "-", "/")
}

// ListAllSessions scans the on-disk session store and returns up to limit
// sessions sorted by transcript mtime descending (most recent first).
// Sub-sessions (IDs containing "_") are skipped. This is pure filesystem
// discovery; no engine interaction.
func ListAllSessions(limit int) []Info {
	entries, err := os.ReadDir(projectsDir())
	if err != nil {
		return nil
	}

	var results []Info
	for _, projectDir := range entries {
		if !projectDir.IsDir() {
			continue
		}
		projectPath := reconstructProjectPath(projectDir.Name())
		projectLabel := filepath.Base(projectPath)

		sessionsDir := filepath.Join(projectsDir(), projectDir.Name(), "sessions")
		sessionEntries, err := os.ReadDir(sessionsDir)
		if err != nil {
			continue
		}
		for _, sessionDir := range sessionEntries {
			if !sessionDir.IsDir() || strings.Contains(sessionDir.Name(), "_") {
				continue
			}
			transcript := filepath.Join(sessionsDir, sessionDir.Name(), "transcript.jsonl")
			stat, err := os.Stat(transcript)
			if err != nil {
				continue
			}

			info := Info{
				SessionID:   sessionDir.Name(),
				Project:     projectLabel,
				ProjectPath: projectPath,
				ModTime:     stat.ModTime(),
			}
			readSessionMetadata(filepath.Join(sessionsDir, sessionDir.Name(), "metadata.json"), &info)
			results = append(results, info)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ModTime.After(results[j].ModTime) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func readSessionMetadata(path string, info *Info) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var meta struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return
	}
	info.Name = meta.Name
	info.Description = meta.Description
}

// TranscriptPath locates the transcript.jsonl for a session ID, scanning all
// project directories. Prefix matching is supported so the first characters
// of a UUID are enough.
func TranscriptPath(sessionID string) (string, bool) {
	entries, err := os.ReadDir(projectsDir())
	if err != nil {
		return "", false
	}
	for _, projectDir := range entries {
		if !projectDir.IsDir() {
			continue
		}
		sessionsDir := filepath.Join(projectsDir(), projectDir.Name(), "sessions")
		sessionEntries, err := os.ReadDir(sessionsDir)
		if err != nil {
			continue
		}
		for _, sessionDir := range sessionEntries {
			if !sessionDir.IsDir() {
				continue
			}
			if sessionDir.Name() == sessionID || strings.HasPrefix(sessionDir.Name(), sessionID) {
				transcript := filepath.Join(sessionsDir, sessionDir.Name(), "transcript.jsonl")
				if _, err := os.Stat(transcript); err == nil {
					return transcript, true
				}
			}
		}
	}
	return "", false
}

// FindMostRecentSession returns the session ID with the latest activity, or
// false when no sessions exist on disk.
func FindMostRecentSession() (string, bool) {
	sessions := ListAllSessions(1)
	if len(sessions) == 0 {
		return "", false
	}
	return sessions[0].SessionID, true
}
