package main

import (
	"context"
	"fmt"
	"io"

	"github.com/andrej220/secuaudit/internal/lg"
	"github.com/andrej220/secuaudit/pkg/audit"
	"github.com/andrej220/secuaudit/pkg/config"
	"github.com/andrej220/secuaudit/pkg/executor"
	"github.com/andrej220/secuaudit/pkg/report"
	"github.com/andrej220/secuaudit/pkg/rules"
	"github.com/andrej220/secuaudit/pkg/sink"
)

const serviceName = "secuaudit"

func run(ctx context.Context, s config.Settings, out io.Writer) error {
	logger := lg.New(&lg.Config{ServiceName: serviceName, Debug: s.Log.Debug, Format: s.Log.Format})
	defer logger.Sync()
	ctx = lg.Attach(ctx, logger)

	renderer, err := report.New(s.Output.Format)
	if err != nil {
		return err
	}

	checks, err := loadChecks(s)
	if err != nil {
		return err
	}

	execCfg, err := executorConfig(s)
	if err != nil {
		return err
	}
	backend, err := executor.New(execCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to close backend", lg.String("backend", backend.Name()), lg.Err(err))
		}
	}()

	sinks, err := openSinks(ctx, s, renderer)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("failed to close sinks", lg.Err(err))
		}
	}()

	a := &auditor{
		evaluator: audit.NewEvaluator(backend,
			audit.WithTimeout(s.Timeout),
			audit.WithDiagnostics(audit.LogDiagnostics(logger))),
		renderer: renderer,
		sinks:    sinks,
		target:   s.Target.Host,
		out:      out,
		lg:       logger.With(lg.String("backend", backend.Name())),
	}
	a.lg.Info("audit configured",
		lg.String("rules", s.Rules),
		lg.Any("ids", s.IDs),
		lg.Duration("timeout", s.Timeout),
		lg.Int("connect_retries", s.Target.ConnectRetries),
		lg.Bool("watch", s.Watch))

	rep, err := a.runOnce(ctx, checks)
	if err != nil {
		return err
	}
	if s.Watch {
		rep, err = a.watch(ctx, s, rep)
		if err != nil {
			return err
		}
	}
	if !rep.Summary.AllPassed() {
		return errChecksFailed
	}
	return nil
}

func loadChecks(s config.Settings) ([]audit.Check, error) {
	checks, err := rules.LoadFile(s.Rules)
	if err != nil {
		return nil, err
	}
	return rules.Filter(checks, s.IDs)
}

func executorConfig(s config.Settings) (executor.Config, error) {
	policy, err := executor.ParseHostKeyPolicy(s.Target.HostKeyPolicy)
	if err != nil {
		return executor.Config{}, err
	}
	return executor.Config{
		Kind:           executor.ParseTarget(s.Target.Host),
		Host:           s.Target.Host,
		Port:           s.Target.Port,
		User:           s.Target.User,
		Password:       s.Target.Password,
		KeyFile:        s.Target.KeyFile,
		KeyPassphrase:  s.Target.KeyPassphrase,
		HostKeyPolicy:  policy,
		KnownHostsFile: s.Target.KnownHostsFile,
		ConnectTimeout: s.Timeout,
		DialRetries:    uint64(s.Target.ConnectRetries),
	}, nil
}

func openSinks(ctx context.Context, s config.Settings, renderer report.Renderer) (sink.Fanout, error) {
	var sinks sink.Fanout
	if s.Output.File != "" {
		sinks = append(sinks, sink.NewFile(s.Output.File, renderer, !s.Output.NoOverwrite))
	}
	if s.Mongo.URI != "" {
		m, err := sink.NewMongo(ctx, s.Mongo.URI, s.Mongo.DB, s.Mongo.Collection)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if len(s.Kafka.Brokers) > 0 {
		lg.FromContext(ctx).Debug("publishing to Kafka", lg.Any("brokers", s.Kafka.Brokers), lg.String("topic", s.Kafka.Topic))
		sinks = append(sinks, sink.NewKafka(s.Kafka.Brokers, s.Kafka.Topic))
	}
	return sinks, nil
}

type auditor struct {
	evaluator *audit.Evaluator
	renderer  report.Renderer
	sinks     sink.Sink
	target    string
	out       io.Writer
	lg        lg.Logger
}

func (a *auditor) runOnce(ctx context.Context, checks []audit.Check) (report.Report, error) {
	a.lg.Info("starting audit", lg.Int("checks", len(checks)))
	rep := report.NewReport(a.target, a.evaluator.Run(ctx, checks))

	if err := a.renderer.Render(a.out, rep); err != nil {
		return rep, fmt.Errorf("failed to render report: %w", err)
	}
	if err := a.sinks.Publish(ctx, rep); err != nil {
		return rep, fmt.Errorf("failed to publish report: %w", err)
	}
	a.lg.Info("audit finished",
		lg.String("run_id", rep.RunID),
		lg.Time("generated_at", rep.GeneratedAt),
		lg.Int("passed", rep.Summary.Passed),
		lg.Int("failed", rep.Summary.Failed),
		lg.Int("errors", rep.Summary.Errors))
	return rep, nil
}

// watch re-runs the audit on every rules file change until ctx is done and
// returns the last report.
func (a *auditor) watch(ctx context.Context, s config.Settings, last report.Report) (report.Report, error) {
	changes, err := rules.WatchFile(ctx, s.Rules)
	if err != nil {
		return last, err
	}
	a.lg.Info("watching rules file", lg.String("path", s.Rules))
	for range changes {
		checks, err := loadChecks(s)
		if err != nil {
			a.lg.Error("rules reload failed, keeping previous report", lg.Err(err))
			continue
		}
		rep, err := a.runOnce(ctx, checks)
		if err != nil {
			a.lg.Error("audit run failed", lg.Err(err))
			continue
		}
		last = rep
	}
	return last, nil
}
