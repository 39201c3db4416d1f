package engine_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func TestIDPrefix(t *testing.T) {
	k, _ := domain.LookupKind(domain.TypeUseCase)
	require.Equal(t, "MY_PROJECT-SYS-UC", engine.IDPrefix(" my project ", "SYS", k))
}

func TestIDsAreNotReusedAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	env.need(t, "one")
	two := env.need(t, "two")
	require.NoError(t, env.Engine.DeleteArtifact(env.Ctx, domain.TypeNeed, two.ID, "tester"))
	require.Equal(t, "DEMO-SYS-NEED-003", env.need(t, "three").ID)
}

func TestIDSuffixComparedNumerically(t *testing.T) {
	env := newTestEnv(t)
	one := env.need(t, "one")
	two := env.need(t, "two")
	_, err := env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, one.ID, "DEMO-SYS-NEED-1000", "tester")
	require.NoError(t, err)
	_, err = env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, two.ID, "DEMO-SYS-NEED-999", "tester")
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-NEED-1001", env.need(t, "next").ID)
}

func TestIDIgnoresNonNumericSuffix(t *testing.T) {
	env := newTestEnv(t)
	first := env.need(t, "one")
	_, err := env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, first.ID, "DEMO-SYS-NEED-draft", "tester")
	require.NoError(t, err)
	got := env.need(t, "two")
	require.Equal(t, "DEMO-SYS-NEED-002", got.ID)
}

func TestIDPrefixScanIsCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	create := func(area string) string {
		a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
			Type: domain.TypeNeed, ProjectID: "p1", Area: area, Fields: map[string]string{"title": area},
		})
		require.NoError(t, err)
		return a.ID
	}
	for i := 1; i <= 3; i++ {
		require.Equal(t, fmt.Sprintf("DEMO-OPS-NEED-%03d", i), create("OPS"))
	}
	require.Equal(t, "DEMO-ops-NEED-001", create("ops"))

	preview, err := env.Engine.PreviewID(env.Ctx, domain.TypeNeed, "p1", "ops")
	require.NoError(t, err)
	require.Equal(t, "DEMO-ops-NEED-002", preview)
}

func TestPreviewIDDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	env.need(t, "one")
	preview, err := env.Engine.PreviewID(env.Ctx, domain.TypeNeed, "p1", "System")
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-NEED-002", preview)
	preview, err = env.Engine.PreviewID(env.Ctx, domain.TypeNeed, "p1", "SYS")
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-NEED-002", preview)
	require.Equal(t, preview, env.need(t, "two").ID)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	const n = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]bool{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
				Type: domain.TypeRequirement, ProjectID: "p1", Area: "SYS",
				Fields: map[string]string{"short_name": "c", "text": "The system shall run"},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[a.ID] = true
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Len(t, ids, n)
	for i := 1; i <= n; i++ {
		require.Contains(t, ids, fmt.Sprintf("DEMO-SYS-REQ-%03d", i))
	}
}
