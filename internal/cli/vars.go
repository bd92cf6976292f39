package cli

import (
	"github.com/pmbridge/pmbridge/internal/activity"
	"github.com/pmbridge/pmbridge/internal/broker"
	"github.com/pmbridge/pmbridge/internal/core"
	"github.com/pmbridge/pmbridge/internal/observability"
	"github.com/pmbridge/pmbridge/internal/review"
	"github.com/pmbridge/pmbridge/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Config      *models.Config
	Engine      *core.WorkflowEngine
	Broker      *broker.Broker
	Gate        *review.Gate
	Recorder    *activity.Recorder
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
)
