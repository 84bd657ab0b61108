// Package session owns the long-lived state of one conformance run: the
// WebSocket connection, the protocol client, the notification log and the
// caches built from the device under test. Construction dials the device;
// Close releases everything.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nccheck/constraints"
	"github.com/c360/nccheck/devmodel"
	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/protocol"
	"github.com/c360/nccheck/schema"
	"github.com/c360/nccheck/statusmon"
	"github.com/c360/nccheck/transport"
)

const component = "session"

// Options tunes a Session.
type Options struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// MessageTimeout bounds each command round trip.
	MessageTimeout time.Duration
	Logger         *slog.Logger
	// Registerer receives protocol metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Session is one connected conformance run against a device.
type Session struct {
	// ID identifies the run in logs and reports.
	ID string

	conn   *transport.Conn
	client *protocol.Client
	log    *eventlog.Log
	logger *slog.Logger

	// mu guards lazy construction of the caches below; cmd fans model
	// checks out across goroutines. Once populated they are read-only.
	mu           sync.Mutex
	root         *devmodel.Block
	classManager *devmodel.ClassManager
	schemas      *schema.Cache
	resolver     *constraints.Resolver
}

// New dials the device's IS-12 endpoint and starts the protocol client.
func New(ctx context.Context, endpoint string, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With(slog.String("component", component), slog.String("run", id))

	conn, err := transport.Dial(ctx, endpoint, transport.Options{
		HandshakeTimeout: opts.HandshakeTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	log := eventlog.New()
	client, err := protocol.NewClient(conn, log, protocol.Options{
		ResponseTimeout: opts.MessageTimeout,
		Logger:          logger,
		Registerer:      opts.Registerer,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("session established", slog.String("endpoint", endpoint))

	return &Session{
		ID:     id,
		conn:   conn,
		client: client,
		log:    log,
		logger: logger,
	}, nil
}

// Client exposes the protocol client for direct command invocation.
func (s *Session) Client() *protocol.Client {
	return s.client
}

// Notifications exposes the shared notification log.
func (s *Session) Notifications() *eventlog.Log {
	return s.log
}

// QueryDeviceModel builds the device model tree, caching it for the rest of
// the run. The first call walks the whole device; later calls return the
// cached tree.
func (s *Session) QueryDeviceModel(ctx context.Context) (*devmodel.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root != nil {
		return s.root, nil
	}

	builder := devmodel.NewBuilder(s.client, s.logger)
	root, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.logger.Info("device model built", slog.Int("objects", len(root.OIDs())))
	return s.root, nil
}

// ClassManager returns the device's class manager node, building the device
// model first if needed.
func (s *Session) ClassManager(ctx context.Context) (*devmodel.ClassManager, error) {
	root, err := s.QueryDeviceModel(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classManager != nil {
		return s.classManager, nil
	}

	node, err := devmodel.FindManager(root, nc.ClassClassManager)
	if err != nil {
		return nil, err
	}
	cm, ok := node.(*devmodel.ClassManager)
	if !ok {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, component, "ClassManager",
			"object at oid %d advertises the class manager class but is not one", node.Base().OID)
	}
	s.classManager = cm
	return cm, nil
}

// DeviceManager returns the device's device manager node, enforcing the same
// singleton and root-ownership rules as the class manager.
func (s *Session) DeviceManager(ctx context.Context) (*devmodel.Manager, error) {
	root, err := s.QueryDeviceModel(ctx)
	if err != nil {
		return nil, err
	}
	node, err := devmodel.FindManager(root, nc.ClassDeviceManager)
	if err != nil {
		return nil, err
	}
	manager, ok := node.(*devmodel.Manager)
	if !ok {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, component, "DeviceManager",
			"object at oid %d advertises the device manager class but is not one", node.Base().OID)
	}
	return manager, nil
}

// ResolveConstraint returns the effective constraint for property on object,
// or nil when no level defines one.
func (s *Session) ResolveConstraint(ctx context.Context, property nc.PropertyDescriptor, object *devmodel.Object) (*nc.Constraint, error) {
	cm, err := s.ClassManager(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.resolver == nil {
		s.resolver = constraints.NewResolver(cm)
	}
	resolver := s.resolver
	s.mu.Unlock()

	return resolver.Effective(property, object)
}

// ValidateAgainstSchema validates payload against the JSON schema generated
// for datatypeName. Schemas are generated from the device's own datatype
// descriptors on first use.
func (s *Session) ValidateAgainstSchema(ctx context.Context, payload any, datatypeName string) error {
	s.mu.Lock()
	cache := s.schemas
	s.mu.Unlock()

	if cache == nil {
		cm, err := s.ClassManager(ctx)
		if err != nil {
			return err
		}
		generated, err := schema.Generate(cm.Datatypes)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.schemas == nil {
			s.schemas = generated
			s.logger.Debug("schemas generated", slog.Int("count", generated.Len()))
		}
		cache = s.schemas
		s.mu.Unlock()
	}
	return cache.Validate(payload, datatypeName)
}

// RunStatusMonitorCheck executes the status monitor rule set against the
// monitor object at monitorOID, driving its resource through driver.
func (s *Session) RunStatusMonitorCheck(ctx context.Context, monitorOID int, profile statusmon.Profile, driver statusmon.Driver, opts statusmon.Options) (*statusmon.Report, error) {
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	validator := statusmon.NewValidator(s.client, profile, driver, opts)
	return validator.Run(ctx, monitorOID)
}

// Monitors returns every object in the device model deriving from the
// profile's monitor class.
func (s *Session) Monitors(ctx context.Context, profile statusmon.Profile) ([]devmodel.Node, error) {
	root, err := s.QueryDeviceModel(ctx)
	if err != nil {
		return nil, err
	}
	return root.FindByClassID(profile.ClassID, true, true), nil
}

// Close shuts down the protocol client and the connection.
func (s *Session) Close() error {
	err := s.client.Close()
	if closeErr := s.conn.Close(); err == nil {
		err = closeErr
	}
	s.logger.Info("session closed")
	return err
}
