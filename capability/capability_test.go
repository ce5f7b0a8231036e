package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	class, ok := Classify(ComputeMatchScore)
	require.True(t, ok)
	require.Equal(t, ClassLocal, class)

	class, ok = Classify(FetchPO)
	require.True(t, ok)
	require.Equal(t, ClassExternal, class)

	_, ok = Classify(Name("teleport_invoice"))
	require.False(t, ok)
}

func TestSimulatorMatchScore(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	invoke := func(invoice, po, threshold float64) map[string]any {
		result, err := sim.Execute(ctx, ComputeMatchScore, map[string]any{
			"invoice_amount": invoice,
			"po_amount":      po,
			"threshold":      threshold,
		})
		require.NoError(t, err)
		return result
	}

	t.Run("exact match scores one", func(t *testing.T) {
		result := invoke(1000, 1000, 0.90)
		require.Equal(t, 1.0, result["match_score"])
		require.Equal(t, "MATCHED", result["match_result"])
	})

	t.Run("fifteen percent off scores 0.85", func(t *testing.T) {
		result := invoke(850, 1000, 0.90)
		require.InDelta(t, 0.85, result["match_score"].(float64), 1e-9)
		require.Equal(t, "FAILED", result["match_result"])
	})

	t.Run("score at threshold matches", func(t *testing.T) {
		result := invoke(900, 1000, 0.90)
		require.InDelta(t, 0.90, result["match_score"].(float64), 1e-9)
		require.Equal(t, "MATCHED", result["match_result"])
	})

	t.Run("zero po amount scores zero", func(t *testing.T) {
		result := invoke(850, 0, 0.90)
		require.Equal(t, 0.0, result["match_score"])
		require.Equal(t, "FAILED", result["match_result"])
		require.Equal(t, 100.0, result["tolerance_pct"])
	})

	t.Run("wildly off clamps to zero", func(t *testing.T) {
		result := invoke(5000, 1000, 0.90)
		require.Equal(t, 0.0, result["match_score"])
	})
}

func TestSimulatorApprovalPolicy(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	result, err := sim.Execute(ctx, ApplyApprovalPolicy, map[string]any{
		"amount": 850.0, "auto_approve_limit": 5000.0,
	})
	require.NoError(t, err)
	require.Equal(t, "AUTO_APPROVED", result["approval_status"])
	require.Equal(t, "system", result["approver_id"])

	result, err = sim.Execute(ctx, ApplyApprovalPolicy, map[string]any{
		"amount": 9000.0, "auto_approve_limit": 5000.0,
	})
	require.NoError(t, err)
	require.Equal(t, "REQUIRES_APPROVAL", result["approval_status"])
	require.Equal(t, "manager_001", result["approver_id"])
}

// countingProvider fails a fixed number of times before succeeding, tracking
// which capabilities it saw.
type countingProvider struct {
	failures int
	calls    int
	seen     []Name
}

func (p *countingProvider) Execute(ctx context.Context, name Name, params map[string]any) (map[string]any, error) {
	p.calls++
	p.seen = append(p.seen, name)
	if p.calls <= p.failures {
		return nil, errors.New("erp connector: connection refused")
	}
	return map[string]any{"ok": true}, nil
}

func TestClientRoutesByClass(t *testing.T) {
	local := &countingProvider{}
	external := &countingProvider{}
	client, err := NewClient(ClientOptions{Local: local, External: external})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Invoke(ctx, ComputeMatchScore, nil)
	require.NoError(t, err)
	_, err = client.Invoke(ctx, FetchPO, nil)
	require.NoError(t, err)

	require.Equal(t, []Name{ComputeMatchScore}, local.seen)
	require.Equal(t, []Name{FetchPO}, external.seen)
}

func TestClientUnknownCapabilityRoutesLocal(t *testing.T) {
	local := &countingProvider{}
	external := &countingProvider{}
	client, err := NewClient(ClientOptions{Local: local, External: external})
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), Name("teleport_invoice"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, local.calls)
	require.Equal(t, 0, external.calls)
}

func TestClientRetriesTransientExternalFailure(t *testing.T) {
	local := &countingProvider{}
	external := &countingProvider{failures: 2}
	client, err := NewClient(ClientOptions{Local: local, External: external})
	require.NoError(t, err)

	result, err := client.Invoke(context.Background(), FetchPO, nil)
	require.NoError(t, err)
	require.Equal(t, true, result["ok"])
	require.Equal(t, 3, external.calls)
}

func TestClientDoesNotRetryLocalFailure(t *testing.T) {
	local := &countingProvider{failures: 10}
	external := &countingProvider{}
	client, err := NewClient(ClientOptions{Local: local, External: external})
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), ComputeMatchScore, nil)
	require.Error(t, err)
	require.Equal(t, 1, local.calls)
}

func TestClientRequiresProviders(t *testing.T) {
	_, err := NewClient(ClientOptions{Local: &countingProvider{}})
	require.Error(t, err)
	_, err = NewClient(ClientOptions{External: &countingProvider{}})
	require.Error(t, err)
}
