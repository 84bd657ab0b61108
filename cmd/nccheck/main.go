// Package main implements the nccheck entry point. nccheck connects to an
// NMOS device's IS-12 control endpoint, builds its device model, validates
// descriptors, constraints and generated schemas, and runs the status monitor
// checks against every monitor the device exposes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/c360/nccheck/config"
	"github.com/c360/nccheck/connapi"
	"github.com/c360/nccheck/devmodel"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/session"
	"github.com/c360/nccheck/statusmon"
)

const appName = "nccheck"

func main() {
	if err := run(); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "nccheck.yaml", "Path to configuration file")
	endpoint := flag.String("endpoint", "", "IS-12 WebSocket URL (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *endpoint)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()

	sess, err := session.New(ctx, cfg.ControlEndpoint, session.Options{
		HandshakeTimeout: cfg.HandshakeTimeout.Std(),
		MessageTimeout:   cfg.MessageTimeout.Std(),
		Logger:           logger,
		Registerer:       registry,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	root, err := sess.QueryDeviceModel(ctx)
	if err != nil {
		return err
	}
	logger.Info("device model built",
		"objects", len(root.OIDs()),
		"roles", len(root.RolePaths()))

	if err := runModelChecks(ctx, sess, root, logger); err != nil {
		return err
	}

	if cfg.ConnectionAPI == "" {
		logger.Info("no connection API configured, skipping status monitor checks")
		return nil
	}
	return runMonitorChecks(ctx, cfg, sess, logger)
}

func loadConfig(path, endpoint string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if endpoint == "" {
			return config.Config{}, err
		}
		// A bare endpoint with defaults is enough to run.
		cfg = config.Default()
	}
	if endpoint != "" {
		cfg.ControlEndpoint = endpoint
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})
	return slog.New(handler).With("app", appName)
}

// runModelChecks validates every object's properties against the constraint
// hierarchy and the device's generated schemas.
func runModelChecks(ctx context.Context, sess *session.Session, root *devmodel.Block, logger *slog.Logger) error {
	cm, err := sess.ClassManager(ctx)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var constraintViolations int
	group.Go(func() error {
		root.Walk(func(node devmodel.Node) {
			base := node.Base()
			class, err := cm.GetControlClass(base.ClassID, true)
			if err != nil {
				logger.Warn("class descriptor missing",
					"oid", base.OID, "class", base.ClassID.String(), "error", err)
				return
			}
			for _, property := range class.Properties {
				if _, err := sess.ResolveConstraint(groupCtx, property, base); err != nil {
					constraintViolations++
					logger.Error("constraint violation",
						"oid", base.OID,
						"role", base.RolePathString(),
						"property", property.Name,
						"error", err)
				}
			}
		})
		return nil
	})

	var descriptorViolations int
	group.Go(func() error {
		descriptorViolations = runDescriptorSweep(groupCtx, sess, cm, logger)
		return nil
	})

	var schemaViolations int
	group.Go(func() error {
		if _, err := cm.GetDatatype("NcBlockMemberDescriptor", false); err != nil {
			logger.Warn("NcBlockMemberDescriptor not published, skipping schema sweep")
			return nil
		}
		for _, member := range root.MemberDescriptors(true) {
			if err := sess.ValidateAgainstSchema(groupCtx, member, "NcBlockMemberDescriptor"); err != nil {
				schemaViolations++
				logger.Error("member descriptor schema violation",
					"oid", member.OID, "role", member.Role, "error", err)
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("model checks complete",
		"constraint_violations", constraintViolations,
		"descriptor_violations", descriptorViolations,
		"schema_violations", schemaViolations)
	if total := constraintViolations + descriptorViolations + schemaViolations; total > 0 {
		return fmt.Errorf("%d model check violations found", total)
	}
	return nil
}

// runDescriptorSweep cross-checks the class manager's GetControlClass and
// GetDatatype method results against the bulk-read descriptor tables. The
// two views of the same descriptor must agree structurally.
func runDescriptorSweep(ctx context.Context, sess *session.Session, cm *devmodel.ClassManager, logger *slog.Logger) int {
	violations := 0

	check := func(kind, name string, reference any, fetch func() (nc.MethodResult, error)) {
		result, err := fetch()
		if err != nil {
			violations++
			logger.Error("descriptor fetch failed", "kind", kind, "name", name, "error", err)
			return
		}
		if !result.OK() {
			violations++
			logger.Error("descriptor fetch rejected",
				"kind", kind, "name", name, "status", int(result.Status))
			return
		}

		refJSON, err := json.Marshal(reference)
		if err != nil {
			violations++
			logger.Error("descriptor encode failed", "kind", kind, "name", name, "error", err)
			return
		}
		var refAny, gotAny any
		if err := json.Unmarshal(refJSON, &refAny); err != nil {
			violations++
			logger.Error("descriptor decode failed", "kind", kind, "name", name, "error", err)
			return
		}
		if err := result.DecodeValue(&gotAny); err != nil {
			violations++
			logger.Error("descriptor decode failed", "kind", kind, "name", name, "error", err)
			return
		}
		if err := devmodel.CompareDescriptors(refAny, gotAny, name+": "); err != nil {
			violations++
			logger.Error("descriptor mismatch", "kind", kind, "name", name, "error", err)
		}
	}

	for name, reference := range cm.Classes {
		classID := reference.ClassID
		check("class", name, reference, func() (nc.MethodResult, error) {
			return sess.Client().GetControlClass(ctx, cm.OID, classID, false)
		})
	}
	for name, reference := range cm.Datatypes {
		datatypeName := name
		check("datatype", name, reference, func() (nc.MethodResult, error) {
			return sess.Client().GetDatatype(ctx, cm.OID, datatypeName, false)
		})
	}
	return violations
}

// runMonitorChecks fans the status monitor rule set out across every sender
// and receiver monitor in the device model.
func runMonitorChecks(ctx context.Context, cfg config.Config, sess *session.Session, logger *slog.Logger) error {
	connClient, err := connapi.NewClient(cfg.ConnectionAPI, connapi.Options{Logger: logger})
	if err != nil {
		return err
	}

	type target struct {
		oid     int
		profile statusmon.Profile
		driver  statusmon.Driver
	}
	var targets []target

	receiverProfile := statusmon.ReceiverMonitorProfile()
	receivers, err := sess.Monitors(ctx, receiverProfile)
	if err != nil {
		return err
	}
	for _, node := range receivers {
		targets = append(targets, target{
			oid:     node.Base().OID,
			profile: receiverProfile,
			driver:  connapi.ReceiverDriver{Client: connClient},
		})
	}

	senderProfile := statusmon.SenderMonitorProfile()
	senders, err := sess.Monitors(ctx, senderProfile)
	if err != nil {
		return err
	}
	for _, node := range senders {
		targets = append(targets, target{
			oid:     node.Base().OID,
			profile: senderProfile,
			driver:  connapi.SenderDriver{Client: connClient},
		})
	}

	if len(targets) == 0 {
		logger.Info("no status monitors found")
		return nil
	}

	opts := statusmon.Options{
		ReportingDelay: cfg.StatusReportingDelay.Std(),
		SettleTime:     cfg.SettleTime.Std(),
		Logger:         logger,
	}

	// Monitors share the connection's notification log, so the checks run
	// one monitor at a time.
	var reports []*statusmon.Report
	for _, tgt := range targets {
		report, err := sess.RunStatusMonitorCheck(ctx, tgt.oid, tgt.profile, tgt.driver, opts)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	failed := 0
	for _, report := range reports {
		for _, result := range report.Results {
			logger.Info("rule result",
				"oid", report.MonitorOID,
				"rule", string(result.Rule),
				"outcome", result.Outcome.String(),
				"detail", result.Message,
				"spec", result.SpecLink)
		}
		if !report.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d monitors failed status checks", failed, len(targets))
	}
	logger.Info("status monitor checks passed", "monitors", len(targets))
	return nil
}
