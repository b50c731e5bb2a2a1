package section

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/refinery-project/refinery/internal/model"
)

// Store persists section snapshots under a working directory.
type Store struct {
	root string
	log  *slog.Logger
}

// NewStore creates (or reopens) a section store rooted at dir. An unwritable
// root is a fatal configuration error.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{root: dir, log: log}
	if err := os.MkdirAll(s.sectionsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("section store: create root: %w", err)
	}
	return s, nil
}

func (s *Store) sectionsDir() string {
	return filepath.Join(s.root, "sections")
}

func (s *Store) originalPath(id string) string {
	return filepath.Join(s.sectionsDir(), id, "original.tex")
}

func (s *Store) versionPath(id string, key versionKey) string {
	stage := "working"
	if key.Final {
		stage = "final"
	}
	return filepath.Join(s.sectionsDir(), id,
		fmt.Sprintf("iter%d", key.Iteration),
		fmt.Sprintf("pass%d_%s.tex", key.Pass, stage))
}

// read returns file content and whether the file exists. Read errors other
// than absence are logged and reported as absent: downstream code treats a
// missing snapshot as "nothing changed yet".
func (s *Store) read(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("section read failed", "path", path, "error", err)
		}
		return "", false
	}
	return string(data), true
}

func (s *Store) write(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("section store: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("section store: write %s: %w", path, err)
	}
	return nil
}

func (s *Store) writeMeta(path string, meta model.SectionVersion) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("section store: marshal metadata: %w", err)
	}
	return s.write(path, string(data)+"\n")
}

// SaveOriginal persists the iteration-0 snapshot of a section. The original
// is immutable: a second save for the same section is a no-op.
func (s *Store) SaveOriginal(id, content string) error {
	path := s.originalPath(id)
	if _, exists := s.read(path); exists {
		return nil
	}
	if err := s.write(path, content); err != nil {
		return err
	}
	meta := model.SectionVersion{
		SectionID:  id,
		Iteration:  0,
		Pass:       0,
		Final:      true,
		TokenCount: CountTokens(content),
		Timestamp:  time.Now().UTC(),
	}
	return s.writeMeta(filepath.Join(s.sectionsDir(), id, "original_metadata.json"), meta)
}

// SaveVersion persists a snapshot for (id, iteration, pass, stage). Final
// snapshots are write-once; the working snapshot may be rewritten as repair
// rounds accumulate fixes within the same pass.
func (s *Store) SaveVersion(id, content string, iteration, pass int, final bool) error {
	key := versionKey{Iteration: iteration, Pass: pass, Final: final}
	path := s.versionPath(id, key)
	if final {
		if _, exists := s.read(path); exists {
			return nil
		}
	}
	if err := s.write(path, content); err != nil {
		return err
	}
	meta := model.SectionVersion{
		SectionID:  id,
		Iteration:  iteration,
		Pass:       pass,
		Final:      final,
		TokenCount: CountTokens(content),
		Timestamp:  time.Now().UTC(),
	}
	metaPath := path[:len(path)-len(".tex")] + "_metadata.json"
	return s.writeMeta(metaPath, meta)
}

// SaveSpecial persists a pseudo-section (preamble/postamble). Pseudo-sections
// are not versioned; they pass through reconstruction untouched.
func (s *Store) SaveSpecial(id, content string) error {
	return s.write(filepath.Join(s.sectionsDir(), "_special", id+".tex"), content)
}

// Special returns pseudo-section content, or ok=false if absent.
func (s *Store) Special(id string) (string, bool) {
	return s.read(filepath.Join(s.sectionsDir(), "_special", id+".tex"))
}

// Original returns the iteration-0 snapshot, or ok=false if absent.
func (s *Store) Original(id string) (string, bool) {
	return s.read(s.originalPath(id))
}

// Content resolves section content at (iteration, pass, stage), walking the
// backward candidate chain and finally the original. ok is false only when
// no snapshot of the section exists at all.
func (s *Store) Content(id string, iteration, pass int, final bool) (string, bool) {
	if iteration == 0 {
		return s.Original(id)
	}
	for _, key := range contentCandidates(iteration, pass, final) {
		if content, ok := s.read(s.versionPath(id, key)); ok {
			return content, true
		}
	}
	return s.Original(id)
}

// Versions bundles the three endpoints used for residual-diff context.
type Versions struct {
	Original string
	Previous string
	Current  string
}

// ThreeVersions resolves the original, previous, and current snapshots of a
// section at (iteration, pass). The fallback chain is total: provided an
// original exists, Previous and Current always resolve (degenerating to the
// original when no later snapshot has been written).
func (s *Store) ThreeVersions(id string, iteration, pass int) Versions {
	var v Versions
	v.Original, _ = s.Original(id)

	v.Previous = v.Original
	for _, key := range previousCandidates(iteration, pass) {
		if content, ok := s.read(s.versionPath(id, key)); ok {
			v.Previous = content
			break
		}
	}

	v.Current = v.Previous
	working := versionKey{Iteration: iteration, Pass: pass, Final: false}
	if content, ok := s.read(s.versionPath(id, working)); ok {
		v.Current = content
	}
	return v
}

// ResidualDiff returns the unified diff between the previous and current
// snapshots of a section at (iteration, pass). Empty when either endpoint is
// absent or the two are identical.
func (s *Store) ResidualDiff(id string, iteration, pass int) string {
	v := s.ThreeVersions(id, iteration, pass)
	if v.Previous == "" || v.Current == "" {
		return ""
	}
	return UnifiedDiff(v.Previous, v.Current, id+"_previous", id+"_current", 3)
}

// SaveOrder persists the document order of sections.
func (s *Store) SaveOrder(order []string) error {
	data, err := json.MarshalIndent(map[string][]string{"order": order}, "", "  ")
	if err != nil {
		return fmt.Errorf("section store: marshal order: %w", err)
	}
	return s.write(filepath.Join(s.sectionsDir(), "section_order.json"), string(data)+"\n")
}

// Order returns the persisted document order, or nil if never saved.
func (s *Store) Order() []string {
	content, ok := s.read(filepath.Join(s.sectionsDir(), "section_order.json"))
	if !ok {
		return nil
	}
	var payload map[string][]string
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		s.log.Warn("section order metadata unreadable", "error", err)
		return nil
	}
	return payload["order"]
}

// List returns all stored section IDs in document order. Sections missing
// from the order metadata are appended after the ordered ones.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.sectionsDir())
	if err != nil {
		return nil
	}
	existing := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() && !IsSpecial(e.Name()) {
			existing[e.Name()] = true
		}
	}

	var out []string
	for _, id := range s.Order() {
		if existing[id] {
			out = append(out, id)
			delete(existing, id)
		}
	}
	var rest []string
	for id := range existing {
		rest = append(rest, id)
	}
	// Deterministic tail for sections outside the saved order.
	sort.Strings(rest)
	return append(out, rest...)
}

// SaveExtracted persists every part of an extracted document: originals for
// real sections, pseudo-sections, and the document order.
func (s *Store) SaveExtracted(doc Document) error {
	for id, content := range doc.Sections {
		var err error
		if IsSpecial(id) {
			err = s.SaveSpecial(id, content)
		} else {
			err = s.SaveOriginal(id, content)
		}
		if err != nil {
			return err
		}
	}
	return s.SaveOrder(doc.Order)
}

// Snapshot collects the latest final content of every section at
// (iteration, pass), plus the pseudo-sections, keyed by section ID.
func (s *Store) Snapshot(iteration, pass int) map[string]string {
	out := map[string]string{}
	for _, id := range s.List() {
		if content, ok := s.Content(id, iteration, pass, true); ok {
			out[id] = content
		}
	}
	for _, id := range []string{PreambleID, PostambleID} {
		if content, ok := s.Special(id); ok {
			out[id] = content
		}
	}
	return out
}

// MergeSnapshot reconstructs the full document at (iteration, pass) using
// the stored section order.
func (s *Store) MergeSnapshot(iteration, pass int) string {
	return Merge(s.Snapshot(iteration, pass), s.Order())
}
