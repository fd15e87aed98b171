// Package runcfg owns the on-disk layout of the runner: the `.stride/`
// data directory and the `config.json` defaults file.
package runcfg

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = ".stride"

	fileConfig    = "config.json"
	fileMetaDB    = "metadata.db"
	fileInstances = "instances.db"
	fileUUIDLog   = "solver_uuid_backup.log"
)

// DefaultLogDir is where per-run log directories are created.
const DefaultLogDir = "stride-logs"

// Dir is the `.stride/` data directory. Constructing one ensures the
// directory exists.
type Dir struct {
	path string
}

// OpenDir ensures path exists and is a directory.
func OpenDir(path string) (*Dir, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("data directory %s is not a directory", path)
	}
	return &Dir{path: path}, nil
}

// DefaultDir opens `.stride/` relative to the working directory.
func DefaultDir() (*Dir, error) {
	return OpenDir(dataDirName)
}

// Path returns the directory itself.
func (d *Dir) Path() string { return d.path }

// ConfigFile returns the path of config.json.
func (d *Dir) ConfigFile() string { return filepath.Join(d.path, fileConfig) }

// MetaDBFile returns the path of the metadata snapshot.
func (d *Dir) MetaDBFile() string { return filepath.Join(d.path, fileMetaDB) }

// InstanceDBFile returns the path of the instance body cache.
func (d *Dir) InstanceDBFile() string { return filepath.Join(d.path, fileInstances) }

// SolverUUIDBackupFile returns the append-only log of replaced solver
// UUIDs.
func (d *Dir) SolverUUIDBackupFile() string { return filepath.Join(d.path, fileUUIDLog) }
