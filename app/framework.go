package app

import (
	"log/slog"

	"github.com/hsgames/evnet/safe"
)

type Framework interface {
	Init() error
	Run() error
	Destroy() error
}

// RunFramework drives f through Init, Run and Destroy, stopping at the first
// error.
func RunFramework(f Framework) (err error) {
	defer safe.RecoverError(&err)
	slog.Info("app: run framework start")
	if err = f.Init(); err != nil {
		slog.Error("app: init", slog.Any("error", err))
		return err
	}
	if err = f.Run(); err != nil {
		slog.Error("app: run", slog.Any("error", err))
		return err
	}
	if err = f.Destroy(); err != nil {
		slog.Error("app: destroy", slog.Any("error", err))
		return err
	}
	slog.Info("app: run framework stop")
	return nil
}
