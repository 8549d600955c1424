// Package transcript locates Claude Code conversation logs and reads bounded
// windows of them. Reads never fail: missing files and malformed lines
// simply produce fewer entries.
package transcript

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/logging"
)

var transcriptLog = logging.ForComponent(logging.CompTranscript)

// FileExt is the transcript file extension.
const FileExt = ".jsonl"

// Store resolves transcripts under a projects root (normally
// ~/.claude/projects).
type Store struct {
	Root string
}

// NewStore returns a store rooted at root, or at DefaultRoot when empty.
func NewStore(root string) *Store {
	if root == "" {
		root = DefaultRoot()
	}
	return &Store{Root: root}
}

// DefaultRoot is Claude's projects directory.
func DefaultRoot() string {
	return config.GetClaudeProjectsDir()
}

// EncodeProjectDir turns a project path into its transcript directory name.
func EncodeProjectDir(projectPath string) string {
	return strings.ReplaceAll(projectPath, "/", "-")
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// claudeDirName is the stricter encoding newer Claude releases use, where
// every non-alphanumeric rune becomes a dash.
func claudeDirName(projectPath string) string {
	return nonAlnum.ReplaceAllString(projectPath, "-")
}

// Locate finds <conversationID>.jsonl for a project. The exact encoded
// directory wins; otherwise the first sibling directory (by name) whose
// name starts with the encoded path and holds the file is used, which
// covers worktrees.
func (s *Store) Locate(projectPath, conversationID string) (string, bool) {
	if s == nil || s.Root == "" || conversationID == "" {
		return "", false
	}
	if strings.ContainsAny(conversationID, `/\`) || strings.Contains(conversationID, "..") {
		return "", false
	}
	fileName := conversationID + FileExt

	prefixes := []string{EncodeProjectDir(projectPath)}
	if alt := claudeDirName(projectPath); alt != prefixes[0] {
		prefixes = append(prefixes, alt)
	}

	for _, p := range prefixes {
		candidate := filepath.Join(s.Root, p, fileName)
		if isFile(candidate) {
			return candidate, true
		}
	}

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return "", false
	}
	for _, p := range prefixes {
		for _, de := range entries {
			if !de.IsDir() || !strings.HasPrefix(de.Name(), p) {
				continue
			}
			candidate := filepath.Join(s.Root, de.Name(), fileName)
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Tail parses the last maxBytes of path. When the window starts mid-file
// the first (possibly partial) line is discarded.
func Tail(path string, maxBytes int64) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}

	offset := info.Size() - maxBytes
	if offset < 0 || maxBytes <= 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil
	}

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}

	if offset > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return nil
		}
		data = data[idx+1:]
	}

	var entries []Entry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if e, ok := parseWindowLine(path, line); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Head parses path from the start, stopping once the bytes consumed exceed
// maxBytes. The line that crosses the limit is still parsed.
func Head(path string, maxBytes int64) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var (
		entries  []Entry
		consumed int64
	)
	for consumed <= maxBytes {
		line, err := br.ReadBytes('\n')
		consumed += int64(len(line))
		if e, ok := parseWindowLine(path, line); ok {
			entries = append(entries, e)
		}
		if err != nil {
			break
		}
	}
	return entries
}

// Tail reads the tail window of a located transcript.
func (s *Store) Tail(path string, maxBytes int64) []Entry { return Tail(path, maxBytes) }

// Head reads the head window of a located transcript.
func (s *Store) Head(path string, maxBytes int64) []Entry { return Head(path, maxBytes) }

func parseWindowLine(path string, line []byte) (Entry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Entry{}, false
	}
	e, ok := ParseLine(line)
	if !ok {
		logging.Aggregate(logging.CompTranscript, "transcript_line_dropped",
			slog.String("file", filepath.Base(path)))
		transcriptLog.Debug("transcript_line_dropped",
			slog.String("file", filepath.Base(path)), slog.Int("bytes", len(line)))
	}
	return e, ok
}
