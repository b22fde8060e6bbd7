package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
	"github.com/kadirpekel/maestro/pkg/testutils"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestAdaptiveDoublesOnTruncation(t *testing.T) {
	provider := testutils.NewScriptedProvider(
		testutils.RespondTruncated("partial"),
		testutils.RespondTruncated("more"),
		testutils.Respond("full answer"),
	)
	client, err := llm.NewAdaptiveClient(provider, llm.AdaptiveConfig{Policy: fastPolicy()})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), nil, llm.RequestConfig{MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "full answer", resp.Content)

	calls := provider.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 1000, calls[0].Config.MaxTokens)
	assert.Equal(t, 2000, calls[1].Config.MaxTokens)
	assert.Equal(t, 4000, calls[2].Config.MaxTokens)
}

func TestAdaptiveCapsAtTokenLimit(t *testing.T) {
	provider := testutils.NewScriptedProvider(testutils.RespondTruncated("still partial"))
	client, err := llm.NewAdaptiveClient(provider, llm.AdaptiveConfig{
		MaxTokenLimit: 4000,
		Policy:        fastPolicy(),
	})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), nil, llm.RequestConfig{MaxTokens: 1000})
	require.NoError(t, err)
	assert.True(t, resp.Truncated(), "truncated response at the cap is returned, not retried forever")

	var budgets []int
	for _, c := range provider.Calls() {
		budgets = append(budgets, c.Config.MaxTokens)
	}
	assert.Equal(t, []int{1000, 2000, 4000}, budgets)
}

func TestAdaptiveRetriesRetriableErrors(t *testing.T) {
	provider := testutils.NewScriptedProvider(
		testutils.FailRetriable("connection reset"),
		testutils.Respond("recovered"),
	)
	client, err := llm.NewAdaptiveClient(provider, llm.AdaptiveConfig{Policy: fastPolicy()})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), nil, llm.RequestConfig{MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 2, provider.CallCount())
}

func TestAdaptiveSurfacesNonRetriable(t *testing.T) {
	provider := testutils.NewScriptedProvider(
		testutils.Fail(retry.New(retry.KindAuth, "invalid key")),
	)
	client, err := llm.NewAdaptiveClient(provider, llm.AdaptiveConfig{Policy: fastPolicy()})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), nil, llm.RequestConfig{MaxTokens: 100})
	require.Error(t, err)
	assert.Equal(t, retry.KindAuth, retry.KindOf(err))
	assert.Equal(t, 1, provider.CallCount())
}

func TestRegistryLookup(t *testing.T) {
	reg := llm.NewRegistry()
	provider := testutils.NewScriptedProvider(testutils.Respond("ok"))
	require.NoError(t, reg.RegisterProvider("scripted", provider))

	got, err := reg.ProviderFor("scripted")
	require.NoError(t, err)
	assert.Equal(t, "scripted", got.Name())

	_, err = reg.ProviderFor("missing")
	assert.Equal(t, retry.KindNotFound, retry.KindOf(err))
}
