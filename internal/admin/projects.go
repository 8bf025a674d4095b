package admin

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ThreadIDKey is the frontmatter key linking a note to its thread.
const ThreadIDKey = "discord_thread_id"

// aboutNote describes the projects folder itself and is never synced.
const aboutNote = "_about.md"

// Project is one note under the projects folder. A folder project is indexed
// by the note with the folder's name inside it.
type Project struct {
	Name     string
	NotePath string
}

// CollectProjects lists the projects directly under dir in name order.
// Folders without an index note are reported and skipped.
func (a *Admin) CollectProjects(dir string) ([]Project, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Project
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			index := filepath.Join(dir, name, name+".md")
			if _, err := os.Stat(index); err != nil {
				fmt.Fprintf(a.out, "  ⚠️  folder %s has no index note, skipped\n", name)
				continue
			}
			out = append(out, Project{Name: name, NotePath: index})
			continue
		}
		if filepath.Ext(name) != ".md" || name == aboutNote {
			continue
		}
		out = append(out, Project{Name: strings.TrimSuffix(name, ".md"), NotePath: filepath.Join(dir, name)})
	}
	return out, nil
}

// ProjectThreadIDs collects every thread id recorded in a note anywhere
// under dir, sorted.
func ProjectThreadIDs(dir string) ([]string, error) {
	seen := map[string]struct{}{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" || d.Name() == aboutNote {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		id, err := ThreadID(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if id != "" {
			seen[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// splitFrontmatter separates a leading "---" block from the rest of a note.
func splitFrontmatter(content string) (front, body string, ok bool) {
	first, rest, found := strings.Cut(content, "\n")
	if !found || strings.TrimRight(first, "\r") != "---" {
		return "", content, false
	}
	for off := 0; off <= len(rest); {
		line, _, more := strings.Cut(rest[off:], "\n")
		if strings.TrimRight(line, "\r") == "---" {
			end := off + len(line)
			if more {
				end++
			}
			return rest[:off], rest[end:], true
		}
		if !more {
			break
		}
		off += len(line) + 1
	}
	return "", content, false
}

func frontmatterMap(front string) (*yaml.Node, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		m := &yaml.Node{Kind: yaml.MappingNode}
		return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{m}}, m, nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, nil, errors.New("frontmatter is not a mapping")
	}
	return &doc, m, nil
}

// ThreadID reads the thread id from a note's frontmatter. A note without
// one yields "".
func ThreadID(content string) (string, error) {
	front, _, ok := splitFrontmatter(content)
	if !ok {
		return "", nil
	}
	_, m, err := frontmatterMap(front)
	if err != nil {
		return "", err
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == ThreadIDKey {
			return strings.TrimSpace(m.Content[i+1].Value), nil
		}
	}
	return "", nil
}

// SetThreadID records id in the note's frontmatter, adding a frontmatter
// block when the note has none. Other keys keep their order.
func SetThreadID(content, id string) (string, error) {
	front, body, ok := splitFrontmatter(content)
	if !ok {
		return "---\n" + ThreadIDKey + ": " + id + "\n---\n" + content, nil
	}
	doc, m, err := frontmatterMap(front)
	if err != nil {
		return "", err
	}
	val := &yaml.Node{Kind: yaml.ScalarNode, Value: id}
	replaced := false
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == ThreadIDKey {
			m.Content[i+1] = val
			replaced = true
			break
		}
	}
	if !replaced {
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: ThreadIDKey}, val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return "---\n" + buf.String() + "---\n" + body, nil
}

func writeThreadID(path, id string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := SetThreadID(string(b), id)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return os.WriteFile(path, []byte(out), 0o644)
}

// autoThreadPrefixes mark threads opened by scheduled jobs; they never
// belong to a project.
var autoThreadPrefixes = []string{"[scheduled]", "🔄 "}

const (
	matchPrefixRunes  = 12
	matchMinRunes     = 8
	matchMaxNameRunes = 60
)

func isAutoThread(t Thread) bool {
	name := strings.ToLower(t.Name)
	for _, p := range autoThreadPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// MatchThread finds the thread that belongs to a project by name: an exact
// case-insensitive match first, then a thread containing the project's
// first 12 characters, then a thread whose whole name appears in the
// project's. Fuzzy matches need at least 8 characters and skip names longer
// than 60.
func MatchThread(project string, threads []Thread) (Thread, bool) {
	var candidates []Thread
	for _, t := range threads {
		if !isAutoThread(t) {
			candidates = append(candidates, t)
		}
	}
	name := strings.ToLower(project)
	for _, t := range candidates {
		if strings.ToLower(t.Name) == name {
			return t, true
		}
	}

	runes := []rune(name)
	if n := min(matchPrefixRunes, len(runes)); n >= matchMinRunes {
		prefix := string(runes[:n])
		for _, t := range candidates {
			if len([]rune(t.Name)) > matchMaxNameRunes {
				continue
			}
			if strings.Contains(strings.ToLower(t.Name), prefix) {
				return t, true
			}
		}
	}

	for _, t := range candidates {
		tn := strings.ToLower(t.Name)
		n := len([]rune(tn))
		if n > matchMaxNameRunes || n < matchMinRunes {
			continue
		}
		if strings.Contains(name, tn) {
			return t, true
		}
	}
	return Thread{}, false
}
