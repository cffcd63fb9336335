package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/logging"
)

// newBackupID derives a unique backup id from the timestamp.
func newBackupID(backupsRoot string, now time.Time) string {
	base := now.UTC().Format(constants.TimeFormatFilename)
	id := base
	for n := 2; fsutil.Exists(filepath.Join(backupsRoot, id)); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// Backup copies every production file into backups/<id>/, writes the
// manifest and re-verifies every copy. Production is only read.
func Backup(ctx context.Context, productionDir, backupsRoot string, now time.Time) (*Manifest, error) {
	logger := logging.FromContext(ctx)

	files, err := fsutil.ListFiles(productionDir)
	if err != nil {
		return nil, errors.Storage("backup", "list production files", err)
	}

	id := newBackupID(backupsRoot, now)
	backupDir, err := filepath.Abs(filepath.Join(backupsRoot, id))
	if err != nil {
		return nil, errors.Storage("backup", "resolve backup dir", err)
	}
	prodAbs, err := filepath.Abs(productionDir)
	if err != nil {
		return nil, errors.Storage("backup", "resolve production dir", err)
	}
	if err := os.MkdirAll(backupDir, constants.DirPermissions); err != nil {
		return nil, errors.Storage("backup "+id, "create backup dir", err)
	}

	m := &Manifest{
		ID:            id,
		Timestamp:     now.UTC(),
		BackupDir:     backupDir,
		ProductionDir: prodAbs,
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		backupRel := filepath.ToSlash(filepath.Join(backupFilesDir, rel))
		src := filepath.Join(prodAbs, filepath.FromSlash(rel))
		srcSum, _, err := fsutil.Checksum(src)
		if err != nil {
			return nil, errors.Storage("backup "+id, "checksum "+rel, err)
		}
		sum, size, err := fsutil.CopyFile(src, filepath.Join(backupDir, filepath.FromSlash(backupRel)))
		if err != nil {
			return nil, errors.Storage("backup "+id, "copy "+rel, err)
		}
		if sum != srcSum {
			return nil, errors.Integrity("backup "+id, rel+" changed while being copied", nil)
		}
		m.Files = append(m.Files, FileEntry{OriginalPath: rel, BackupPath: backupRel, Checksum: sum, Size: size})
	}

	if err := writeManifest(m); err != nil {
		return nil, err
	}
	if err := m.Verify(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("backup_id", id).
		Int("files", len(m.Files)).
		Int64("bytes", m.TotalSize()).
		Msg("backup created")
	return m, nil
}
