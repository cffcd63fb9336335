package release

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/logging"
)

// LatestBackup selects the newest backup in Rollback.
const LatestBackup = "latest"

// RollbackOptions configure a rollback.
type RollbackOptions struct {
	// BackupID selects the backup; empty or LatestBackup picks the newest.
	BackupID string
	// VerifyBefore re-checks backup checksums before touching production.
	VerifyBefore bool
	// VerifyAfter re-checks restored production checksums.
	VerifyAfter bool
	// Prune removes production files absent from the manifest.
	Prune bool
}

// Backups lists backup ids, newest first.
func (m *Manager) Backups() ([]string, error) {
	return ListBackups(m.BackupsDir())
}

// Manifest loads the manifest of a backup.
func (m *Manager) Manifest(id string) (*Manifest, error) {
	if id == "" || id == LatestBackup {
		ids, err := m.Backups()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errors.NewNotFoundError("backup", LatestBackup)
		}
		id = ids[0]
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, errors.NewValidationError("backup", id, "invalid backup id")
	}
	return LoadManifest(filepath.Join(m.BackupsDir(), id))
}

// Rollback restores production from a backup. Running it twice leaves the
// same state as running it once.
func (m *Manager) Rollback(ctx context.Context, opts RollbackOptions) (*RollbackResult, error) {
	lk, err := acquireLock(m.opts.WorkDir, "rollback-"+uuid.NewString())
	if err != nil {
		return nil, err
	}
	defer func() { _ = lk.release() }()
	if lk.reclaimed != "" {
		logging.FromContext(ctx).Warn().Str("holder", lk.reclaimed).Msg("reclaimed stale release lock")
	}

	manifest, err := m.Manifest(opts.BackupID)
	if err != nil {
		return nil, err
	}
	return m.restore(ctx, manifest, opts)
}

// restore copies every manifest file back into production. The caller holds the lock.
func (m *Manager) restore(ctx context.Context, manifest *Manifest, opts RollbackOptions) (*RollbackResult, error) {
	logger := logging.FromContext(ctx).With().Str("backup_id", manifest.ID).Logger()
	res := &RollbackResult{BackupID: manifest.ID, StartedAt: m.opts.Now().UTC()}
	defer func() { res.FinishedAt = m.opts.Now().UTC() }()

	if opts.VerifyBefore {
		if err := manifest.Verify(); err != nil {
			res.Errors = append(res.Errors, errors.ToRecord(err))
			return res, err
		}
	}

	for _, f := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dst := filepath.Join(m.opts.ProductionDir, filepath.FromSlash(f.OriginalPath))
		if sum, _, err := fsutil.Checksum(dst); err == nil && sum == f.Checksum {
			res.Unchanged = append(res.Unchanged, f.OriginalPath)
			continue
		}
		src := filepath.Join(manifest.BackupDir, filepath.FromSlash(f.BackupPath))
		sum, _, err := fsutil.CopyFile(src, dst)
		if err != nil {
			err = errors.Storage(f.OriginalPath, "restore file", err)
			res.Errors = append(res.Errors, errors.ToRecord(err))
			return res, err
		}
		if sum != f.Checksum {
			err := errors.Integrity(f.OriginalPath, "restored content does not match manifest", nil)
			res.Errors = append(res.Errors, errors.ToRecord(err))
			return res, err
		}
		res.Restored = append(res.Restored, f.OriginalPath)
	}

	if opts.Prune {
		files, err := fsutil.ListFiles(m.opts.ProductionDir)
		if err != nil {
			return res, errors.Storage("rollback", "list production files", err)
		}
		for _, rel := range files {
			if _, ok := manifest.Lookup(rel); ok {
				continue
			}
			if err := os.Remove(filepath.Join(m.opts.ProductionDir, filepath.FromSlash(rel))); err != nil {
				err = errors.Storage(rel, "prune file", err)
				res.Errors = append(res.Errors, errors.ToRecord(err))
				return res, err
			}
			res.Pruned = append(res.Pruned, rel)
		}
	}

	if opts.VerifyAfter {
		for _, f := range manifest.Files {
			sum, _, err := fsutil.Checksum(filepath.Join(m.opts.ProductionDir, filepath.FromSlash(f.OriginalPath)))
			if err != nil || sum != f.Checksum {
				err := errors.Integrity(f.OriginalPath, "production differs from backup after rollback", err)
				res.Errors = append(res.Errors, errors.ToRecord(err))
				return res, err
			}
		}
		res.Verified = true
	}

	logger.Info().
		Int("restored", len(res.Restored)).
		Int("unchanged", len(res.Unchanged)).
		Int("pruned", len(res.Pruned)).
		Msg("rollback complete")
	return res, nil
}
