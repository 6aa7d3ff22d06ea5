// Package reliability ships the durable state off the box. Each backup
// run stages the ledger files and sqlite archives, bundles them into a
// checksummed tar.gz with a manifest, uploads the bundle to S3-compatible
// storage and rotates aged bundles out under a retention window.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/database"
)

const (
	backupPrefix  = "foresight-backup-"
	backupTimeFmt = "2006-01-02-150405"
	manifestName  = "manifest.json"

	// Manifest format marker, bumped when the bundle layout changes.
	manifestVersion = "1"

	// Newest bundles kept regardless of age.
	minBackupsKept = 3
)

// Object is one stored-object listing entry.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the remote side of the backup pipeline.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// Manifest describes one backup bundle.
type Manifest struct {
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Files     []ManifestFile `json:"files"`
}

// ManifestFile records one bundled file with its integrity checksum.
type ManifestFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is one stored bundle, parsed from its object key.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService bundles and ships state files. Sources are registered at
// wiring time: flat files are copied into the bundle, sqlite handles are
// staged with VACUUM INTO so the copy is consistent under WAL.
type BackupService struct {
	store     ObjectStore
	dataDir   string
	files     []string
	databases []*database.DB
	clock     func() time.Time
	log       zerolog.Logger
}

func NewBackupService(store ObjectStore, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		store:   store,
		dataDir: dataDir,
		clock:   time.Now,
		log:     log.With().Str("component", "backup").Logger(),
	}
}

// AddFile registers a flat state file. A file absent at backup time is
// skipped: a pool that has not saved yet is not an error.
func (s *BackupService) AddFile(path string) {
	s.files = append(s.files, path)
}

// AddDatabase registers a live sqlite handle for staged copies.
func (s *BackupService) AddDatabase(db *database.DB) {
	s.databases = append(s.databases, db)
}

// CreateAndUpload stages every registered source, bundles the stage with
// a manifest and uploads the bundle. No sources staged means no upload.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	started := time.Now()

	staging, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	manifest := Manifest{Timestamp: s.clock().UTC(), Version: manifestVersion}

	for _, path := range s.files {
		staged, err := stageCopy(path, staging)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Debug().Str("file", path).Msg("State file absent, skipping")
				continue
			}
			return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
		}
		entry, err := manifestEntry(staged)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", filepath.Base(path), err)
		}
		manifest.Files = append(manifest.Files, entry)
	}

	for _, db := range s.databases {
		staged := filepath.Join(staging, db.Name()+".db")
		stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(staged, "'", "''"))
		if _, err := db.Conn().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("stage database %s: %w", db.Name(), err)
		}
		entry, err := manifestEntry(staged)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", db.Name(), err)
		}
		manifest.Files = append(manifest.Files, entry)
	}

	if len(manifest.Files) == 0 {
		s.log.Info().Msg("No state to back up")
		return nil
	}

	if err := writeManifest(filepath.Join(staging, manifestName), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	key := backupPrefix + manifest.Timestamp.Format(backupTimeFmt) + ".tar.gz"
	archivePath := filepath.Join(staging, key)

	names := make([]string, 0, len(manifest.Files)+1)
	for _, f := range manifest.Files {
		names = append(names, f.Name)
	}
	names = append(names, manifestName)

	if err := buildArchive(archivePath, staging, names); err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, key, archive); err != nil {
		return fmt.Errorf("upload bundle: %w", err)
	}

	s.log.Info().
		Str("bundle", key).
		Int("files", len(manifest.Files)).
		Int64("size_bytes", info.Size()).
		Dur("took", time.Since(started)).
		Msg("Backup uploaded")
	return nil
}

// ListBackups returns the stored bundles, newest first. Objects whose
// keys do not parse as bundle names are skipped.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}

	now := s.clock()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), ".tar.gz")
		ts, err := time.Parse(backupTimeFmt, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Unparseable bundle name, skipping")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes bundles older than retentionDays. The newest three are
// kept regardless of age; retention zero keeps everything.
func (s *BackupService) Rotate(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsKept || retentionDays <= 0 {
		return nil
	}

	cutoff := s.clock().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsKept {
			continue
		}
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Bundle delete failed")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation complete")
	}
	return nil
}

func stageCopy(path, staging string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	staged := filepath.Join(staging, filepath.Base(path))
	dst, err := os.Create(staged)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return staged, nil
}

func manifestEntry(path string) (ManifestFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ManifestFile{}, err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return ManifestFile{}, err
	}

	return ManifestFile{
		Name:      filepath.Base(path),
		SizeBytes: size,
		Checksum:  fmt.Sprintf("sha256:%x", hash.Sum(nil)),
	}, nil
}

func writeManifest(path string, manifest Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func buildArchive(archivePath, dir string, names []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, name := range names {
		if err := addToArchive(tw, filepath.Join(dir, name), name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
