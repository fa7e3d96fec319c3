// Package audit appends one JSON object per line to audit.log in the config
// directory. Entries name profiles and secrets, never their values.
package audit

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// FileName is the audit log inside the config directory.
const FileName = "audit.log"

// Event names.
const (
	EventImport        = "import"
	EventSet           = "set"
	EventUnset         = "unset"
	EventUse           = "use"
	EventProfileDelete = "profile_delete"
	EventRotate        = "rotate"
	EventBackup        = "backup"
	EventRestore       = "restore"
	EventDefault       = "default"
	EventKeyRecover    = "key_recover"
)

type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Profile   string         `json:"profile,omitempty"`
	Backend   string         `json:"backend,omitempty"`
	Names     []string       `json:"names,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	// Context fields for traceability
	Hostname  string `json:"hostname,omitempty"`
	Username  string `json:"username,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type Logger struct {
	path      string
	backend   string
	f         *os.File
	mu        sync.RWMutex
	hostname  string
	username  string
	sessionID string
}

// NewLogger opens (or creates) the audit log in configDir. backend is
// recorded on every entry.
func NewLogger(configDir, backend string) (*Logger, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}
	logPath := filepath.Join(configDir, FileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &Logger{
		path:      logPath,
		backend:   backend,
		f:         f,
		hostname:  hostname,
		username:  username,
		sessionID: generateSessionID(),
	}, nil
}

func generateSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the log file. Must be called when the logger is no longer needed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		err := l.f.Close()
		l.f = nil
		return err
	}
	return nil
}

// RotateOptions contains configuration options for log rotation.
type RotateOptions struct {
	// MaxSize is the maximum size in bytes before rotating (default: 10MB)
	MaxSize int64
	// MaxAge is the maximum age in days before rotating (default: 30 days)
	MaxAge int
	// MaxBackups is the number of old log files to keep (default: 5)
	MaxBackups int
}

func DefaultRotateOptions() RotateOptions {
	return RotateOptions{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
	}
}

// RotateLog renames the log to audit.<timestamp>.log when it exceeds the
// size or age limit and starts a new one. It reports whether it rotated.
func (l *Logger) RotateLog(opts ...RotateOptions) (bool, error) {
	options := DefaultRotateOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	shouldRotate := info.Size() > options.MaxSize
	if !shouldRotate {
		shouldRotate = time.Since(info.ModTime()) > time.Duration(options.MaxAge)*24*time.Hour
	}
	if !shouldRotate {
		return false, nil
	}

	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05.000")
	backupPath := filepath.Join(filepath.Dir(l.path), fmt.Sprintf("audit.%s.log", timestamp))
	if err := os.Rename(l.path, backupPath); err != nil {
		return false, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return false, err
	}
	l.f = f

	l.cleanupOldBackups(options.MaxBackups)
	return true, nil
}

// cleanupOldBackups removes the oldest rotated logs beyond maxBackups.
func (l *Logger) cleanupOldBackups(maxBackups int) {
	if maxBackups <= 0 {
		return
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(l.path), "audit.*.log"))
	if err != nil || len(matches) <= maxBackups {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, fileInfo{path: m, modTime: info.ModTime()})
		}
	}
	slices.SortFunc(files, func(a, b fileInfo) int {
		return a.modTime.Compare(b.modTime)
	})

	for i := 0; i < len(files)-maxBackups; i++ {
		_ = os.Remove(files[i].path)
	}
}

// LogImport records a bulk import. names are the secrets written.
func (l *Logger) LogImport(profile string, names []string, details map[string]any) error {
	return l.logSuccess(EventImport, profile, names, details)
}

func (l *Logger) LogSet(profile, name string) error {
	return l.logSuccess(EventSet, profile, []string{name}, nil)
}

func (l *Logger) LogUnset(profile, name string) error {
	return l.logSuccess(EventUnset, profile, []string{name}, nil)
}

// LogUse records that a command ran with the profile's secrets. Only the
// executable name is kept, arguments may carry secrets.
func (l *Logger) LogUse(profile, command string, exitCode int) error {
	return l.logSuccess(EventUse, profile, nil, map[string]any{
		"command":   filepath.Base(command),
		"exit_code": exitCode,
	})
}

func (l *Logger) LogProfileDelete(profile string, removed int) error {
	return l.logSuccess(EventProfileDelete, profile, nil, map[string]any{"removed": removed})
}

func (l *Logger) LogRotate(vaults int) error {
	return l.logSuccess(EventRotate, "", nil, map[string]any{"vaults": vaults})
}

// LogSuccess records a successful operation with optional details.
func (l *Logger) LogSuccess(event, profile string, details map[string]any) error {
	return l.logSuccess(event, profile, nil, details)
}

// LogFailure records a failed operation with the error message.
func (l *Logger) LogFailure(event, profile, errMsg string, details map[string]any) error {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Profile:   profile,
		Status:    "failure",
		Error:     errMsg,
		Details:   details,
	}
	return l.writeEntry(entry)
}

func (l *Logger) logSuccess(event, profile string, names []string, details map[string]any) error {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Profile:   profile,
		Names:     names,
		Status:    "success",
		Details:   details,
	}
	return l.writeEntry(entry)
}

func (l *Logger) enrichWithContext(entry *AuditEntry) {
	entry.Backend = l.backend
	entry.Hostname = l.hostname
	entry.Username = l.username
	entry.SessionID = l.sessionID
}

// writeEntry appends entry as one JSON line and syncs the file.
func (l *Logger) writeEntry(entry AuditEntry) error {
	l.enrichWithContext(&entry)
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		l.f = f
	}

	if _, err := l.f.Write(data); err != nil {
		return err
	}
	return l.f.Sync()
}

// LoadEntries reads every entry in the log, oldest first. Blank lines are
// skipped; a malformed line is an error naming its line number.
func (l *Logger) LoadEntries() ([]AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var entries []AuditEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Tail returns the last n entries, or all of them when n <= 0.
func Tail(entries []AuditEntry, n int) []AuditEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
