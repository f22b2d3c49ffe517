// Package app wires settings into a ready-to-run download engine. Both the
// CLI and the TUI start runs through Execute.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wintopic/iDanmu-Speed/internal/config"
	"github.com/wintopic/iDanmu-Speed/internal/danmu"
	"github.com/wintopic/iDanmu-Speed/internal/download"
	"github.com/wintopic/iDanmu-Speed/internal/endpoint"
	"github.com/wintopic/iDanmu-Speed/internal/gate"
	dhttp "github.com/wintopic/iDanmu-Speed/internal/http"
	"github.com/wintopic/iDanmu-Speed/internal/metrics"
	"github.com/wintopic/iDanmu-Speed/internal/model"
	"github.com/wintopic/iDanmu-Speed/internal/naming"
	"github.com/wintopic/iDanmu-Speed/internal/retry"
	"github.com/wintopic/iDanmu-Speed/internal/tasklist"
)

// Request is one run: settings plus a task source.
type Request struct {
	Settings *config.Settings

	// InputPath is loaded when Tasks is nil.
	InputPath string
	Tasks     []model.Task

	OnProgress func(download.ProgressEvent)
}

// Execute validates the settings, loads tasks, checks the endpoint and runs
// the download. It returns the process exit code. Setup failures return
// model.ExitSetup with the error.
func Execute(ctx context.Context, req Request) (int, error) {
	s := req.Settings
	s.Normalize()
	if err := s.Validate(); err != nil {
		return model.ExitSetup, err
	}

	tasks := req.Tasks
	if tasks == nil {
		if req.InputPath == "" {
			return model.ExitSetup, fmt.Errorf("no input file given")
		}
		loaded, err := tasklist.Load(req.InputPath)
		if err != nil {
			return model.ExitSetup, err
		}
		tasks = loaded
	}

	root, err := config.APIRoot(s.BaseURL, s.Token)
	if err != nil {
		return model.ExitSetup, err
	}
	rule, err := naming.Parse(s.NamingRule)
	if err != nil {
		return model.ExitSetup, err
	}

	if len(model.Enabled(tasks)) > 0 {
		handle, err := endpoint.NewProber().Ensure(ctx, s.LocalAPI, s.BaseURL, root)
		if err != nil {
			return model.ExitSetup, err
		}
		defer handle.Stop()
	}

	g := gate.New(gate.OnExtend(func(d time.Duration) {
		metrics.RecordGateExtension(d)
		log.Debug().Dur("wait", d).Msg("Rate-limit gate extended")
	}))

	client := dhttp.NewClient(dhttp.Config{
		Timeout:   s.Timeout(),
		Retries:   s.Retries,
		Policy:    retry.NewPolicy(s.RetryDelay()),
		Gate:      g,
		SoftLimit: retry.NewSoftLimit(s.SoftLimitCodes),
	})

	manager := download.NewManager(danmu.NewAPI(client, root), download.Options{
		APIRoot:     root,
		InputPath:   req.InputPath,
		OutputDir:   s.Output,
		NamingRule:  rule,
		Format:      s.DefaultFormat(),
		Concurrency: s.Concurrency,
		Throttle:    s.Throttle(),
	}, req.OnProgress)

	report, err := manager.Run(ctx, tasks)
	if err != nil {
		return model.ExitSetup, err
	}
	return report.ExitCode(), nil
}
