//go:build !linux

package mount

import "github.com/Hara602/fsSentry/internal/model"

type noopWatcher struct{}

func newWatcher() Watcher { return &noopWatcher{} }

func (w *noopWatcher) Start() (<-chan model.MountEvent, error) { return nil, nil }

func (w *noopWatcher) Stop() {}
