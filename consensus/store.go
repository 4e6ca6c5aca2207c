package consensus

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// WriteMode selects overwrite semantics for WriteRecord.
type WriteMode int

const (
	Overwrite WriteMode = iota
	NoOverwrite
)

// SyncMode selects durability semantics for WriteRecord.
type SyncMode int

const (
	Sync SyncMode = iota
	NoSync
)

// FsEnvironment is the filesystem collaborator this package depends on. It
// is satisfied by LocalFS for standalone use; production callers typically
// wire in their own implementation backed by whatever filesystem manager
// the host process already uses.
type FsEnvironment interface {
	FileExists(path string) bool
	DeleteFile(path string) error
	FileSize(path string) (uint64, error)
	CreateDirIfMissing(path string) (created bool, err error)
	SyncDir(path string) error
	WriteRecord(path string, payload []byte, mode WriteMode, sync SyncMode) error
	ReadRecord(path string) ([]byte, error)
}

// FsPaths resolves the deterministic on-disk location of a replication
// group's metadata record.
type FsPaths interface {
	MetaPath(groupID string) string
	MetaDir() string
}

// LocalFS is the default FsEnvironment, backed directly by the local disk.
type LocalFS struct{}

// NewLocalFS returns the default os-backed FsEnvironment.
func NewLocalFS() LocalFS { return LocalFS{} }

func (LocalFS) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (LocalFS) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Trace(ErrNotFound)
		}
		return errors.Annotate(ErrIoError, err.Error())
	}
	return nil
}

func (LocalFS) FileSize(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Trace(ErrNotFound)
		}
		return 0, errors.Annotate(ErrIoError, err.Error())
	}
	return uint64(fi.Size()), nil
}

// CreateDirIfMissing creates dir (and parents) if it does not already
// exist. The caller is responsible for calling SyncDir on the parent when
// created is true.
func (LocalFS) CreateDirIfMissing(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, errors.Annotate(ErrIoError, err.Error())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, errors.Annotate(ErrIoError, err.Error())
	}
	return true, nil
}

// SyncDir fsyncs a directory so that entries created within it (e.g. a
// rename target) survive a crash.
func (LocalFS) SyncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return errors.Annotate(ErrIoError, err.Error())
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Annotate(ErrIoError, err.Error())
	}
	return nil
}

// WriteRecord writes payload to path, honoring mode and sync. Writes always
// go through a temp-file-then-rename sequence so that a reader of path never
// observes a partial record.
func (LocalFS) WriteRecord(path string, payload []byte, mode WriteMode, sync SyncMode) error {
	if mode == NoOverwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Trace(ErrAlreadyPresent)
		} else if !os.IsNotExist(err) {
			return errors.Annotate(ErrIoError, err.Error())
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Annotate(ErrIoError, err.Error())
	}
	tmpName := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.Annotate(ErrIoError, err.Error())
	}
	if sync == Sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return errors.Annotate(ErrIoError, err.Error())
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Annotate(ErrIoError, err.Error())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Annotate(ErrIoError, err.Error())
	}
	removeTmp = false

	if sync == Sync {
		if err := (LocalFS{}).SyncDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecord reads the raw frame at path, returning ErrNotFound if it does
// not exist.
func (LocalFS) ReadRecord(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Trace(ErrNotFound)
		}
		return nil, errors.Annotate(ErrIoError, err.Error())
	}
	return raw, nil
}

// DefaultFsPaths resolves metadata files under <root>/consensus-meta/<group_id>.
type DefaultFsPaths struct {
	Root string
}

func NewDefaultFsPaths(root string) DefaultFsPaths {
	return DefaultFsPaths{Root: root}
}

func (p DefaultFsPaths) MetaDir() string {
	return filepath.Join(p.Root, "consensus-meta")
}

func (p DefaultFsPaths) MetaPath(groupID string) string {
	return filepath.Join(p.MetaDir(), groupID)
}
