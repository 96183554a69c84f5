package common

import coreerrors "pawnchain/core/errors"

var ErrModulePaused = coreerrors.New(coreerrors.KindState, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a PauseView backed by a fixed module set.
type StaticPauses map[string]bool

func (p StaticPauses) IsPaused(module string) bool { return p[module] }

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
