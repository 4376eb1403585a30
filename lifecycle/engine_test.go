package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records lifecycle calls and fails deletes for names listed in
// failDelete.
type fakeService struct {
	mu         sync.Mutex
	deleted    []string
	copied     []string
	containers []string
	failDelete map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{failDelete: map[string]bool{}}
}

func (s *fakeService) Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error) {
	return container + "/" + name, nil
}

func (s *fakeService) Download(ctx context.Context, container, name string) ([]byte, error) {
	return []byte("data"), nil
}

func (s *fakeService) Delete(ctx context.Context, container, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete[name] {
		return fmt.Errorf("delete of %s refused", name)
	}
	s.deleted = append(s.deleted, container+"/"+name)
	return nil
}

func (s *fakeService) DeleteBatch(ctx context.Context, container string, names []string) error {
	return nil
}

func (s *fakeService) Exists(ctx context.Context, container, name string) (bool, error) {
	return true, nil
}

func (s *fakeService) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	return interfaces.ObjectMetadata{Container: container, Name: name, ContentType: "text/plain"}, nil
}

func (s *fakeService) ListObjects(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	return nil, interfaces.ErrNotSupported
}

func (s *fakeService) GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	return "", interfaces.ErrNotSupported
}

func (s *fakeService) CreateContainer(ctx context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers = append(s.containers, container)
	return nil
}

func (s *fakeService) DeleteContainer(ctx context.Context, container string) error { return nil }

func (s *fakeService) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copied = append(s.copied, dstContainer+"/"+dstName)
	return nil
}

func (s *fakeService) GetUsage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	return interfaces.ContainerUsage{}, nil
}

func newTestEngine(svc interfaces.StorageService) *Engine {
	return NewEngine(svc, EngineConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidatePolicy(t *testing.T) {
	valid := interfaces.LifecyclePolicy{
		Name:             "expire-temp",
		ContainerPattern: "^temp-",
		Enabled:          true,
		Rules:            []interfaces.LifecycleRule{{Action: interfaces.ActionDelete, DaysAfterCreation: 30}},
	}

	tests := []struct {
		name    string
		mutate  func(p *interfaces.LifecyclePolicy)
		wantErr bool
	}{
		{name: "valid policy", mutate: func(p *interfaces.LifecyclePolicy) {}},
		{name: "empty name", mutate: func(p *interfaces.LifecyclePolicy) { p.Name = "" }, wantErr: true},
		{name: "bad container pattern", mutate: func(p *interfaces.LifecyclePolicy) { p.ContainerPattern = "[" }, wantErr: true},
		{name: "bad file pattern", mutate: func(p *interfaces.LifecyclePolicy) { p.FilePattern = "(" }, wantErr: true},
		{name: "rule without threshold", mutate: func(p *interfaces.LifecyclePolicy) {
			p.Rules = []interfaces.LifecycleRule{{Action: interfaces.ActionDelete}}
		}, wantErr: true},
		{name: "negative threshold", mutate: func(p *interfaces.LifecyclePolicy) {
			p.Rules = []interfaces.LifecycleRule{{Action: interfaces.ActionDelete, DaysAfterCreation: -1}}
		}, wantErr: true},
		{name: "enabled with no rules", mutate: func(p *interfaces.LifecyclePolicy) { p.Rules = nil }, wantErr: true},
		{name: "disabled with no rules", mutate: func(p *interfaces.LifecyclePolicy) {
			p.Rules = nil
			p.Enabled = false
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := valid
			tt.mutate(&policy)
			err := ValidatePolicy(policy)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrPolicyInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEngine_Evaluate_FirstMatchWins(t *testing.T) {
	engine := newTestEngine(newFakeService())

	policy := interfaces.LifecyclePolicy{
		Name:             "tiered",
		ContainerPattern: "^logs$",
		Enabled:          true,
		Rules: []interfaces.LifecycleRule{
			{Action: interfaces.ActionArchive, DaysAfterCreation: 30},
			{Action: interfaces.ActionDelete, DaysAfterCreation: 90},
		},
	}

	old := interfaces.ObjectMetadata{
		Container: "logs",
		Name:      "app.log",
		CreatedAt: time.Now().UTC().Add(-120 * 24 * time.Hour),
	}

	actions, err := engine.Evaluate(policy, []interfaces.ObjectMetadata{old})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	// Both rules trigger for a 120 day old object but only the first applies.
	assert.Equal(t, interfaces.ActionArchive, actions[0].Action)
}

func TestEngine_Evaluate_PatternFiltering(t *testing.T) {
	engine := newTestEngine(newFakeService())

	policy := interfaces.LifecyclePolicy{
		Name:             "expire-logs",
		ContainerPattern: "^logs$",
		FilePattern:      `\.log$`,
		Enabled:          true,
		Rules:            []interfaces.LifecycleRule{{Action: interfaces.ActionDelete, DaysAfterCreation: 7}},
	}

	aged := time.Now().UTC().Add(-10 * 24 * time.Hour)
	objects := []interfaces.ObjectMetadata{
		{Container: "logs", Name: "app.log", CreatedAt: aged},
		{Container: "logs", Name: "report.pdf", CreatedAt: aged},
		{Container: "docs", Name: "trace.log", CreatedAt: aged},
		{Container: "logs", Name: "fresh.log", CreatedAt: time.Now().UTC()},
	}

	actions, err := engine.Evaluate(policy, objects)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "app.log", actions[0].Object)
}

func TestEngine_Evaluate_DisabledPolicy(t *testing.T) {
	engine := newTestEngine(newFakeService())

	policy := interfaces.LifecyclePolicy{
		Name:             "paused",
		ContainerPattern: ".*",
		Enabled:          false,
		Rules:            []interfaces.LifecycleRule{{Action: interfaces.ActionDelete, DaysAfterCreation: 1}},
	}

	actions, err := engine.Evaluate(policy, []interfaces.ObjectMetadata{{
		Container: "logs",
		Name:      "ancient.log",
		CreatedAt: time.Now().UTC().Add(-365 * 24 * time.Hour),
	}})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestEngine_Evaluate_ModificationThreshold(t *testing.T) {
	engine := newTestEngine(newFakeService())

	policy := interfaces.LifecyclePolicy{
		Name:             "stale",
		ContainerPattern: ".*",
		Enabled:          true,
		Rules:            []interfaces.LifecycleRule{{Action: interfaces.ActionTierChange, DaysAfterModification: 14}},
	}

	objects := []interfaces.ObjectMetadata{
		{Container: "docs", Name: "stale.txt", ModifiedAt: time.Now().UTC().Add(-20 * 24 * time.Hour)},
		{Container: "docs", Name: "active.txt", ModifiedAt: time.Now().UTC().Add(-time.Hour)},
	}

	actions, err := engine.Evaluate(policy, objects)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "stale.txt", actions[0].Object)
}

func TestEngine_Execute_FailureIsolation(t *testing.T) {
	svc := newFakeService()
	svc.failDelete["poison.txt"] = true
	engine := newTestEngine(svc)

	actions := []Action{
		{Policy: "p", Container: "docs", Object: "a.txt", Action: interfaces.ActionDelete},
		{Policy: "p", Container: "docs", Object: "poison.txt", Action: interfaces.ActionDelete},
		{Policy: "p", Container: "docs", Object: "b.txt", Action: interfaces.ActionDelete},
	}

	reports := engine.Execute(context.Background(), actions)
	require.Len(t, reports, 3)

	executed := 0
	for _, r := range reports {
		if r.Executed {
			executed++
		} else {
			assert.Equal(t, "poison.txt", r.Object)
			assert.Contains(t, r.Error, "refused")
		}
	}
	assert.Equal(t, 2, executed)
	assert.ElementsMatch(t, []string{"docs/a.txt", "docs/b.txt"}, svc.deleted)
}

func TestEngine_Execute_Archive(t *testing.T) {
	svc := newFakeService()
	engine := newTestEngine(svc)

	reports := engine.Execute(context.Background(), []Action{
		{Policy: "p", Container: "logs", Object: "old.log", Action: interfaces.ActionArchive},
	})
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Executed)

	assert.Contains(t, svc.containers, "archive")
	assert.Equal(t, []string{"archive/logs/old.log"}, svc.copied)
	assert.Equal(t, []string{"logs/old.log"}, svc.deleted)
}

func TestEngine_RunPass_InvalidPolicyFailsEarly(t *testing.T) {
	svc := newFakeService()
	engine := newTestEngine(svc)

	policies := []interfaces.LifecyclePolicy{
		{
			Name:             "good",
			ContainerPattern: ".*",
			Enabled:          true,
			Rules:            []interfaces.LifecycleRule{{Action: interfaces.ActionDelete, DaysAfterCreation: 1}},
		},
		{Name: "", ContainerPattern: ".*", Enabled: true},
	}

	_, err := engine.RunPass(context.Background(), policies, []string{"docs"})
	require.ErrorIs(t, err, interfaces.ErrPolicyInvalid)
	assert.Empty(t, svc.deleted, "no action may run when any policy is invalid")
}
