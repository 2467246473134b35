// Package snapshot serializes a fetched Genie space configuration to a
// deterministic on-disk layout inside the repository checkout. Formatting is
// stable across runs so that git diffs reflect configuration drift only.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/genie-ops/genie-backup/internal/databricks"
)

const (
	// DefaultDir is the snapshot directory used when none is configured,
	// matching the layout existing backup repositories already use.
	DefaultDir = "genie_configs"

	instructionsFile  = "instructions.md"
	trustedAssetsFile = "trusted_assets.json"
	exampleSQLFile    = "example_sql.sql"
)

// Writer persists Genie space snapshots under RepoDir/Dir.
type Writer struct {
	// RepoDir is the repository checkout root.
	RepoDir string

	// Dir is the snapshot directory relative to RepoDir. Defaults to
	// DefaultDir when empty.
	Dir string
}

func (w *Writer) dir() string {
	if w.Dir == "" {
		return DefaultDir
	}
	return w.Dir
}

// target resolves the snapshot directory under RepoDir. The directory must
// stay strictly inside the checkout: a value cleaning to the repository root
// or escaping it would make the pre-install RemoveAll delete the checkout
// itself.
func (w *Writer) target() (string, error) {
	dir := filepath.Clean(w.dir())
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("snapshot directory %q must be relative to the repository", w.dir())
	}
	if dir == "." || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("snapshot directory %q resolves to or outside the repository root", w.dir())
	}
	return filepath.Join(w.RepoDir, dir), nil
}

// Path returns the snapshot directory relative to the repository root.
func (w *Writer) Path() string {
	return w.dir()
}

func rawFileName(spaceID string) string {
	return fmt.Sprintf("space_%s.json", spaceID)
}

// Write serializes cfg and swaps it into the snapshot directory, replacing
// the previous snapshot. The swap happens only after every file has been
// written cleanly, so a failed run never leaves a partial snapshot behind.
// It returns the written file paths relative to the repository root.
func (w *Writer) Write(cfg databricks.GenieSpaceConfig) ([]string, error) {
	if w.RepoDir == "" {
		return nil, fmt.Errorf("repository directory is required")
	}
	if cfg.SpaceID == "" {
		return nil, fmt.Errorf("space id is required")
	}
	target, err := w.target()
	if err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(w.RepoDir, ".genie-snapshot-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	files := map[string][]byte{
		rawFileName(cfg.SpaceID): nil,
		instructionsFile:         renderInstructions(cfg.Instructions),
		trustedAssetsFile:        nil,
		exampleSQLFile:           renderExampleSQL(cfg.ExampleSQL),
	}

	rawDoc, err := renderRawSpace(cfg.Raw)
	if err != nil {
		return nil, err
	}
	files[rawFileName(cfg.SpaceID)] = rawDoc

	assetsDoc, err := renderTrustedAssets(cfg.TrustedAssets)
	if err != nil {
		return nil, err
	}
	files[trustedAssetsFile] = assetsDoc

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := os.WriteFile(filepath.Join(staging, name), files[name], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot parent directory: %w", err)
	}
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("remove previous snapshot: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		return nil, fmt.Errorf("install snapshot: %w", err)
	}

	written := make([]string, 0, len(names))
	for _, name := range names {
		written = append(written, filepath.Join(w.dir(), name))
	}
	return written, nil
}

// Load re-parses a written snapshot back into a GenieSpaceConfig. It is the
// inverse of Write for the modeled fields and backs the round-trip tests.
func (w *Writer) Load(spaceID string) (databricks.GenieSpaceConfig, error) {
	dir, err := w.target()
	if err != nil {
		return databricks.GenieSpaceConfig{}, err
	}

	cfg := databricks.GenieSpaceConfig{SpaceID: spaceID}

	raw, err := os.ReadFile(filepath.Join(dir, rawFileName(spaceID)))
	if err != nil {
		return databricks.GenieSpaceConfig{}, fmt.Errorf("read raw snapshot: %w", err)
	}
	cfg.Raw = json.RawMessage(strings.TrimRight(string(raw), "\n"))

	instructions, err := os.ReadFile(filepath.Join(dir, instructionsFile))
	if err != nil {
		return databricks.GenieSpaceConfig{}, fmt.Errorf("read instructions: %w", err)
	}
	cfg.Instructions = strings.TrimRight(string(instructions), "\n")

	assetsData, err := os.ReadFile(filepath.Join(dir, trustedAssetsFile))
	if err != nil {
		return databricks.GenieSpaceConfig{}, fmt.Errorf("read trusted assets: %w", err)
	}
	var refs []string
	if err := json.Unmarshal(assetsData, &refs); err != nil {
		return databricks.GenieSpaceConfig{}, fmt.Errorf("decode trusted assets: %w", err)
	}
	for _, ref := range refs {
		asset, err := databricks.ParseTrustedAsset(ref)
		if err != nil {
			return databricks.GenieSpaceConfig{}, err
		}
		cfg.TrustedAssets = append(cfg.TrustedAssets, asset)
	}

	sqlData, err := os.ReadFile(filepath.Join(dir, exampleSQLFile))
	if err != nil {
		return databricks.GenieSpaceConfig{}, fmt.Errorf("read example sql: %w", err)
	}
	cfg.ExampleSQL = parseExampleSQL(string(sqlData))

	return cfg, nil
}

// renderRawSpace pretty-prints the serialized space document with sorted keys
// so successive snapshots of an unchanged space are byte-identical.
func renderRawSpace(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode serialized space: %w", err)
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode serialized space: %w", err)
	}
	return append(pretty, '\n'), nil
}

func renderInstructions(instructions string) []byte {
	text := strings.TrimRight(instructions, "\n")
	if text == "" {
		return []byte{}
	}
	return []byte(text + "\n")
}

func renderTrustedAssets(assets []databricks.TrustedAsset) ([]byte, error) {
	refs := make([]string, 0, len(assets))
	for _, asset := range assets {
		refs = append(refs, asset.String())
	}

	encoded, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode trusted assets: %w", err)
	}
	return append(encoded, '\n'), nil
}

// statementMarker delimits statements in example_sql.sql. A plain blank-line
// separator would be ambiguous: statements may contain blank lines themselves.
var statementMarker = regexp.MustCompile(`^-- statement \d+$`)

func renderExampleSQL(statements []string) []byte {
	var b strings.Builder
	n := 0
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- statement %d\n%s\n", n, stmt)
	}
	if n == 0 {
		return []byte{}
	}
	return []byte(b.String())
}

func parseExampleSQL(content string) []string {
	var statements []string
	var current []string

	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		current = nil
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if statementMarker.MatchString(line) {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return statements
}
