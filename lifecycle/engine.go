package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/ruteri/storage-policy-backend/storage"
)

// Action is one planned lifecycle operation on a single object.
type Action struct {
	Policy    string
	Container string
	Object    string
	Action    interfaces.LifecycleAction
}

// ActionReport is the per-object outcome of an executed action.
type ActionReport struct {
	Action
	Executed bool
	Error    string
}

// EngineConfig holds lifecycle execution settings. Read-only after startup.
type EngineConfig struct {
	// ArchiveContainer receives archived objects, namespaced by their source
	// container. Defaults to "archive".
	ArchiveContainer string

	// Workers bounds action execution concurrency. Defaults to 4.
	Workers int
}

// Engine evaluates lifecycle policies and executes the resulting actions
// against the storage gateway. The engine talks to the gateway directly, not
// through the security and monitoring filters.
type Engine struct {
	svc              interfaces.StorageService
	archiveContainer string
	workers          int
	log              *slog.Logger
}

// NewEngine creates a lifecycle engine operating against svc.
func NewEngine(svc interfaces.StorageService, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.ArchiveContainer == "" {
		cfg.ArchiveContainer = "archive"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Engine{
		svc:              svc,
		archiveContainer: cfg.ArchiveContainer,
		workers:          cfg.Workers,
		log:              logger.With(slog.String("component", "lifecycle")),
	}
}

// Evaluate matches the given objects against a policy and plans actions.
// Rules are consulted in list order and the first rule whose age threshold is
// met wins; later rules for the same object are not evaluated. Disabled
// policies plan nothing.
func (e *Engine) Evaluate(policy interfaces.LifecyclePolicy, objects []interfaces.ObjectMetadata) ([]Action, error) {
	cp, err := compilePolicy(policy)
	if err != nil {
		return nil, err
	}
	if !policy.Enabled {
		return nil, nil
	}

	now := time.Now().UTC()
	var actions []Action
	for _, obj := range objects {
		if !cp.matches(obj.Container, obj.Name) {
			continue
		}
		for _, rule := range policy.Rules {
			if !ruleTriggered(rule, obj, now) {
				continue
			}
			actions = append(actions, Action{
				Policy:    policy.Name,
				Container: obj.Container,
				Object:    obj.Name,
				Action:    rule.Action,
			})
			break
		}
	}
	return actions, nil
}

// Execute runs planned actions with bounded concurrency. A failed action on
// one object does not abort the others; every action yields a report.
func (e *Engine) Execute(ctx context.Context, actions []Action) []ActionReport {
	if len(actions) == 0 {
		return nil
	}

	jobs := make(chan Action)
	results := make(chan ActionReport, len(actions))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for action := range jobs {
				report := ActionReport{Action: action, Executed: true}
				if err := e.executeAction(ctx, action); err != nil {
					report.Executed = false
					report.Error = err.Error()
					e.log.Warn("Lifecycle action failed",
						slog.String("policy", action.Policy),
						slog.String("container", action.Container),
						slog.String("object", action.Object),
						slog.String("action", action.Action.String()),
						"err", err)
				}
				results <- report
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, action := range actions {
			select {
			case jobs <- action:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	reports := make([]ActionReport, 0, len(actions))
	for report := range results {
		reports = append(reports, report)
	}
	return reports
}

// RunPass evaluates every policy against the configured containers and
// executes the planned actions. All policies are validated up front; a
// misconfigured policy fails the pass before anything is evaluated.
func (e *Engine) RunPass(ctx context.Context, policies []interfaces.LifecyclePolicy, containers []string) ([]ActionReport, error) {
	compiled := make([]compiledPolicy, 0, len(policies))
	for _, policy := range policies {
		cp, err := compilePolicy(policy)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", policy.Name, err)
		}
		if policy.Enabled {
			compiled = append(compiled, cp)
		}
	}
	if len(compiled) == 0 {
		return nil, nil
	}

	start := time.Now()
	var allActions []Action
	for _, container := range containers {
		relevant := false
		for _, cp := range compiled {
			if cp.containerPattern.MatchString(container) {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}

		objects, err := e.listWithMetadata(ctx, container)
		if err != nil {
			// A container that cannot be listed must not abort the pass for
			// the remaining containers.
			e.log.Warn("Failed to list container for lifecycle pass",
				slog.String("container", container), "err", err)
			continue
		}

		for _, cp := range compiled {
			actions, err := e.Evaluate(cp.policy, objects)
			if err != nil {
				return nil, err
			}
			allActions = append(allActions, actions...)
		}
	}

	reports := e.Execute(ctx, allActions)

	failed := 0
	for _, r := range reports {
		if !r.Executed {
			failed++
		}
	}
	e.log.Info("Lifecycle pass complete",
		slog.Int("actions", len(reports)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return reports, nil
}

func (e *Engine) listWithMetadata(ctx context.Context, container string) ([]interfaces.ObjectMetadata, error) {
	it, err := e.svc.ListObjects(ctx, container, "")
	if err != nil {
		return nil, err
	}
	infos, err := storage.CollectObjects(ctx, it)
	if err != nil {
		return nil, err
	}

	objects := make([]interfaces.ObjectMetadata, 0, len(infos))
	for _, info := range infos {
		meta, err := e.svc.GetMetadata(ctx, container, info.Name)
		if err != nil {
			// The object may have been deleted since listing; a benign race.
			e.log.Debug("Skipping object without metadata",
				slog.String("container", container),
				slog.String("object", info.Name), "err", err)
			continue
		}
		objects = append(objects, meta)
	}
	return objects, nil
}

func (e *Engine) executeAction(ctx context.Context, action Action) error {
	switch action.Action {
	case interfaces.ActionDelete:
		return e.svc.Delete(ctx, action.Container, action.Object)

	case interfaces.ActionArchive:
		if err := e.svc.CreateContainer(ctx, e.archiveContainer); err != nil {
			return fmt.Errorf("failed to ensure archive container: %w", err)
		}
		archived := action.Container + "/" + action.Object
		if err := e.svc.Copy(ctx, action.Container, action.Object, e.archiveContainer, archived); err != nil {
			return fmt.Errorf("failed to archive: %w", err)
		}
		return e.svc.Delete(ctx, action.Container, action.Object)

	case interfaces.ActionTierChange:
		meta, err := e.svc.GetMetadata(ctx, action.Container, action.Object)
		if err != nil {
			return err
		}
		data, err := e.svc.Download(ctx, action.Container, action.Object)
		if err != nil {
			return err
		}
		userMeta := map[string]string{}
		for k, v := range meta.UserMetadata {
			userMeta[k] = v
		}
		userMeta["storage-tier"] = "cool"
		_, err = e.svc.Upload(ctx, action.Container, action.Object, data, meta.ContentType, userMeta)
		return err

	default:
		return fmt.Errorf("unknown lifecycle action %d", action.Action)
	}
}

func ruleTriggered(rule interfaces.LifecycleRule, obj interfaces.ObjectMetadata, now time.Time) bool {
	if rule.DaysAfterCreation > 0 && !obj.CreatedAt.IsZero() {
		if now.Sub(obj.CreatedAt) >= time.Duration(rule.DaysAfterCreation)*24*time.Hour {
			return true
		}
	}
	if rule.DaysAfterModification > 0 && !obj.ModifiedAt.IsZero() {
		if now.Sub(obj.ModifiedAt) >= time.Duration(rule.DaysAfterModification)*24*time.Hour {
			return true
		}
	}
	return false
}
