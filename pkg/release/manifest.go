package release

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
)

// backupFilesDir holds the copied files inside a backup directory.
const backupFilesDir = "files"

// FileEntry is one backed-up production file.
type FileEntry struct {
	OriginalPath string `json:"original_path" yaml:"original_path"`
	BackupPath   string `json:"backup_path" yaml:"backup_path"`
	Checksum     string `json:"checksum" yaml:"checksum"`
	Size         int64  `json:"size" yaml:"size"`
}

// Manifest describes a backup. It is written once and never modified; it is
// the sole basis for rollback.
type Manifest struct {
	ID            string      `json:"id" yaml:"id"`
	Timestamp     time.Time   `json:"timestamp" yaml:"timestamp"`
	BackupDir     string      `json:"backup_dir" yaml:"backup_dir"`
	ProductionDir string      `json:"production_dir" yaml:"production_dir"`
	Files         []FileEntry `json:"files" yaml:"files"`
}

// Lookup returns the entry of a production path relative to the production dir.
func (m *Manifest) Lookup(rel string) (FileEntry, bool) {
	for _, f := range m.Files {
		if f.OriginalPath == rel {
			return f, true
		}
	}
	return FileEntry{}, false
}

// TotalSize returns the summed size of all files.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Verify recomputes every backup checksum.
func (m *Manifest) Verify() error {
	for _, f := range m.Files {
		path := filepath.Join(m.BackupDir, f.BackupPath)
		sum, size, err := fsutil.Checksum(path)
		if err != nil {
			return errors.Integrity("backup "+m.ID, "unreadable backup file "+f.BackupPath, err)
		}
		if sum != f.Checksum || size != f.Size {
			return errors.Integrity("backup "+m.ID, fmt.Sprintf("checksum mismatch for %s", f.BackupPath), nil)
		}
	}
	return nil
}

// writeManifest writes the manifest read-only. An existing manifest is never replaced.
func writeManifest(m *Manifest) error {
	path := filepath.Join(m.BackupDir, constants.ManifestFile)
	if fsutil.Exists(path) {
		return errors.Storage("backup "+m.ID, "manifest already exists", os.ErrExist)
	}
	data, err := yaml.MarshalWithOptions(m, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return errors.Storage("backup "+m.ID, "encode manifest", err)
	}
	if err := fsutil.WriteAtomic(path, data); err != nil {
		return errors.Storage("backup "+m.ID, "write manifest", err)
	}
	if err := os.Chmod(path, constants.ReadOnlyFilePermissions); err != nil {
		return errors.Storage("backup "+m.ID, "seal manifest", err)
	}
	return nil
}

// LoadManifest reads the manifest of a backup directory.
func LoadManifest(backupDir string) (*Manifest, error) {
	path := filepath.Join(backupDir, constants.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("backup", filepath.Base(backupDir))
		}
		return nil, errors.WrapIO("read", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &m, nil
}

// ListBackups returns the ids of every backup with a manifest, newest first.
func ListBackups(backupsRoot string) ([]string, error) {
	entries, err := os.ReadDir(backupsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO("list", backupsRoot, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fsutil.Exists(filepath.Join(backupsRoot, e.Name(), constants.ManifestFile)) {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
