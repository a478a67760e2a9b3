package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"simsweep/internal/config"
	"simsweep/internal/runerrors"
	"simsweep/internal/supervisor"
)

// buildTailLines is how much build output an ErrBuild carries.
const buildTailLines = 20

// Build runs "make clean" and then "make" or "make <target>" in dir. A failing
// clean is only logged; a failing build is returned as *runerrors.ErrBuild.
func Build(ctx context.Context, sup *supervisor.Supervisor, target config.Target, dir string, timeout time.Duration, log *slog.Logger) error {
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	log.Info("building simulator", "make_target", target.MakeTarget)
	if _, err := runMake(ctx, sup, dir, timeout, "clean"); err != nil {
		log.Warn("make clean failed", "err", err)
	}
	var args []string
	if target.MakeTarget != "" && target.MakeTarget != config.DefaultTarget {
		args = []string{target.MakeTarget}
	}
	if out, err := runMake(ctx, sup, dir, timeout, args...); err != nil {
		return &runerrors.ErrBuild{Target: target.Name, Output: out, Err: err}
	}
	log.Info("build successful")
	return nil
}

func runMake(ctx context.Context, sup *supervisor.Supervisor, dir string, timeout time.Duration, args ...string) (string, error) {
	p, err := sup.Start(ctx, supervisor.Command{
		Path:    "make",
		Args:    args,
		Dir:     dir,
		Timeout: timeout,
	})
	if err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { p.Stop() })
	defer stop()

	state, err := p.Wait(0)
	out := strings.Join(p.Tail(buildTailLines), "\n")
	if err != nil {
		return out, err
	}
	if state != supervisor.Completed {
		if res := p.Result(); res.Err != nil {
			return out, res.Err
		}
		return out, fmt.Errorf("make %s: %s", strings.Join(args, " "), state)
	}
	return out, nil
}
