package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"conveyor/internal/config"
)

type instanceLock struct {
	path string
	lock *flock.Flock
}

// acquireInstanceLock takes the flock that keeps a host to one conveyord.
func acquireInstanceLock(cfg *config.Config) (*instanceLock, error) {
	path := filepath.Join(cfg.Paths.LogDir, "conveyord.lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, errors.New("lock is held by another conveyord instance")
	}
	return &instanceLock{path: path, lock: lock}, nil
}

func (i *instanceLock) release() {
	_ = i.lock.Unlock()
}
