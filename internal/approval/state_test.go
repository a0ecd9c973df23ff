package approval

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/session"
)

func TestGate_NoMatchApprovesWithoutPrompting(t *testing.T) {
	reg := NewRegistry(logging.NewTestLogger().Logger)
	sess := session.New()

	called := false
	elicit := func(categoryID, description string) (session.ApprovalDecision, error) {
		called = true
		return session.DecisionApproved, nil
	}

	ok, err := Gate(reg, sess, "ls -la", elicit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called)
}

func TestGate_MatchPromptsOnceAndMemoizes(t *testing.T) {
	reg := NewRegistry(logging.NewTestLogger().Logger)
	sess := session.New()

	calls := 0
	elicit := func(categoryID, description string) (session.ApprovalDecision, error) {
		calls++
		return session.DecisionApproved, nil
	}

	ok, err := Gate(reg, sess, "rm -rf /tmp/x", elicit)
	require.NoError(t, err)
	assert.True(t, ok)

	ok2, err := Gate(reg, sess, "rm -rf /tmp/y", elicit)
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Equal(t, 1, calls)
}

func TestGate_AutoApproveSkipsElicitation(t *testing.T) {
	reg := NewRegistry(logging.NewTestLogger().Logger)
	reg.SetAutoApprove(true)
	sess := session.New()

	called := false
	elicit := func(categoryID, description string) (session.ApprovalDecision, error) {
		called = true
		return session.DecisionDenied, nil
	}

	ok, err := Gate(reg, sess, "sudo rm -rf /tmp/x", elicit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called)
}

func TestGate_DeniedBlocks(t *testing.T) {
	reg := NewRegistry(logging.NewTestLogger().Logger)
	sess := session.New()

	elicit := func(categoryID, description string) (session.ApprovalDecision, error) {
		return session.DecisionDenied, nil
	}

	ok, err := Gate(reg, sess, "sudo rm /etc/passwd", elicit)
	require.Error(t, err)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, CategorySystemOperations, denied.Category)
	assert.False(t, ok)
}

func TestGate_ConcurrentMatchesServeSinglePrompt(t *testing.T) {
	reg := NewRegistry(logging.NewTestLogger().Logger)
	sess := session.New()

	var calls int
	var mu sync.Mutex
	elicit := func(categoryID, description string) (session.ApprovalDecision, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return session.DecisionApproved, nil
	}

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := Gate(reg, sess, "npm install left-pad", elicit)
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
