package reconcile

import (
	"context"

	"github.com/picklr-io/shipyard/internal/engine"
)

// LogGroupName is the log group a function writes to.
func LogGroupName(function string) string {
	return "/aws/lambda/" + function
}

// LogGroup pre-creates a function's log group so it carries our tag and a
// retention period instead of the provider's never-expire default.
type LogGroup struct {
	Managed
	Name          string
	Region        string
	RetentionDays int32
}

func (l *LogGroup) Kind() string { return KindLogGroup }

func (l *LogGroup) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	c, err := run.Clients(ctx, l.Region)
	if err != nil {
		return nil, err
	}
	log := logger(run, KindLogGroup, l.Name)

	current, err := c.LogGroups.GetLogGroup(ctx, l.Name)
	if err != nil {
		return nil, providerErr("get log group", l.Name, err)
	}

	if current == nil {
		if err := c.LogGroups.CreateLogGroup(ctx, l.Name, l.owner(run).Tags()); err != nil {
			return nil, providerErr("create log group", l.Name, err)
		}
		if err := c.LogGroups.PutRetentionPolicy(ctx, l.Name, l.RetentionDays); err != nil {
			return nil, providerErr("set log retention", l.Name, err)
		}
		log.Info("log group created", "retention_days", l.RetentionDays)
		return &engine.Result{Outcome: engine.Created, RemoteID: l.Name}, nil
	}

	if err := l.owner(run).Check("log group", l.Name, current.Tags); err != nil {
		return nil, err
	}
	if current.RetentionDays != nil && *current.RetentionDays == l.RetentionDays {
		return &engine.Result{Outcome: engine.Unchanged, RemoteID: l.Name}, nil
	}
	if err := c.LogGroups.PutRetentionPolicy(ctx, l.Name, l.RetentionDays); err != nil {
		return nil, providerErr("set log retention", l.Name, err)
	}
	log.Info("log retention updated", "retention_days", l.RetentionDays)
	return &engine.Result{Outcome: engine.Updated, RemoteID: l.Name}, nil
}
