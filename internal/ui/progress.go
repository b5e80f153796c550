package ui

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/migration"
)

const (
	progressMessageTemplateConstant           = "%s %s in %s: %s"
	progressMessageWithReasonTemplateConstant = "%s %s in %s: %s (%s)"
	progressKindFieldConstant                 = "kind"
	progressProjectFieldConstant              = "project"
	progressEntityFieldConstant               = "entity"
	progressStatusFieldConstant               = "status"
)

// ConsoleProgressReporter renders entity status transitions as console lines.
// It is safe for concurrent use.
type ConsoleProgressReporter struct {
	logger *zap.Logger
	mutex  sync.Mutex
}

// NewConsoleProgressReporter constructs a reporter backed by the provided logger.
func NewConsoleProgressReporter(logger *zap.Logger) *ConsoleProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleProgressReporter{logger: logger}
}

// StatusChanged implements migration.ProgressObserver.
func (reporter *ConsoleProgressReporter) StatusChanged(change migration.StatusChange) {
	if reporter == nil {
		return
	}

	fields := []zap.Field{
		zap.String(progressKindFieldConstant, string(change.Kind)),
		zap.String(progressProjectFieldConstant, change.ProjectName),
		zap.String(progressEntityFieldConstant, change.EntityName),
		zap.String(progressStatusFieldConstant, change.Status.String()),
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	message := formatStatusChange(change)
	switch change.Status {
	case migration.StatusFailed:
		reporter.logger.Error(message, fields...)
	case migration.StatusPartiallyCompleted, migration.StatusPending:
		reporter.logger.Warn(message, fields...)
	default:
		reporter.logger.Info(message, fields...)
	}
}

func formatStatusChange(change migration.StatusChange) string {
	kindLabel := string(change.Kind)
	if len(kindLabel) > 0 {
		kindLabel = strings.ToUpper(kindLabel[:1]) + kindLabel[1:]
	}
	trimmedReason := strings.TrimSpace(change.Reason)
	if len(trimmedReason) == 0 {
		return fmt.Sprintf(progressMessageTemplateConstant, kindLabel, change.EntityName, change.ProjectName, change.Status)
	}
	return fmt.Sprintf(progressMessageWithReasonTemplateConstant, kindLabel, change.EntityName, change.ProjectName, change.Status, trimmedReason)
}
