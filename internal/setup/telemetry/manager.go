package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/marginalia/internal/setup/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized. Its lowercase
// name is the component name of the log files.
//
//go:generate go tool enumer -type=ServiceType -trimprefix=Service -transform=lower
type ServiceType int

const (
	ServiceAPI ServiceType = iota
	ServiceWorker
	ServiceTool
)

// Manager creates one log directory per program session and hands out loggers
// writing into it. Old sessions beyond the configured limit are removed.
type Manager struct {
	instanceID    string
	componentName string
	sessionDir    string
	logDir        string
	level         zapcore.Level
	maxLogsToKeep int
	maxLogLines   int
}

// NewManager creates a new Manager instance. The worker name is appended to the
// component name when given.
func NewManager(serviceType ServiceType, logDir string, debugCfg *config.Debug, workerName string) (*Manager, error) {
	level, err := zapcore.ParseLevel(debugCfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	componentName := serviceType.String()
	if workerName != "" {
		componentName = workerName + "_" + componentName
	}

	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: componentName,
		logDir:        logDir,
		level:         level,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
	}, nil
}

// InstanceID returns the unique identifier of this program run.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// SessionDir returns the log directory of the current session.
func (m *Manager) SessionDir() string {
	return m.sessionDir
}

// GetLoggers initializes the main and database loggers.
func (m *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := m.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := m.newLogger(m.componentName+".log", true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := m.newLogger("database.log", false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	fields := []zap.Field{zap.String("instance_id", m.instanceID)}

	return mainLogger.With(fields...), dbLogger.With(fields...), nil
}

// setupLogDirectories rotates old sessions and creates the session directory.
func (m *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(m.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := m.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	m.sessionDir = filepath.Join(m.logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(m.sessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// newLogger creates a logger writing to a line-bounded file in the session
// directory and, for the main logger, to stderr.
func (m *Manager) newLogger(name string, console bool) (*zap.Logger, error) {
	path := filepath.Join(m.sessionDir, name)

	rotator, err := NewLineRotator(path, m.maxLogLines)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(rotator), m.level),
		NewSpanCore(nil),
	}

	if console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), m.level,
		))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions keeps only the most recent maxLogsToKeep sessions.
func (m *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(m.logDir, "*"))
	if err != nil {
		return err
	}

	if len(sessions) < m.maxLogsToKeep {
		return nil
	}

	// Session directory names sort chronologically
	slices.Sort(sessions)

	for _, session := range sessions[:len(sessions)-m.maxLogsToKeep+1] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}
