package authchain

import (
	"context"
	"testing"
	"time"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identReq(value string) contracts.AuthorizeRequest {
	return contracts.AuthorizeRequest{
		HashID:     "station-1",
		Identifier: models.UnifiedIdentifier{Type: models.IdentifierIDTag, Value: value},
		Version:    models.OCPPVersion16,
	}
}

func TestChainDispatchesInPriorityOrder(t *testing.T) {
	chain := NewChain()
	list := NewLocalListStrategy()
	list.SetEnabled(true)
	list.Put("TAG1", models.AuthAccepted, "", nil)
	cache := NewCacheStrategy()
	cache.SetEnabled(true)
	cache.Put("TAG1", models.AuthorizationResult{Status: models.AuthBlocked}, time.Minute)

	// Register cache first, list second — chain must still run list (priority 10) first.
	chain.RegisterStrategy(cache)
	chain.RegisterStrategy(list)

	result, err := chain.Authorize(context.Background(), identReq("TAG1"))
	require.NoError(t, err)
	assert.Equal(t, models.AuthAccepted, result.Status)
	assert.Equal(t, "localList", result.Method)
}

func TestChainAbstainFallsThroughToUnknown(t *testing.T) {
	chain := NewChain()
	chain.RegisterStrategy(NewLocalListStrategy())
	chain.RegisterStrategy(NewCacheStrategy())

	result, err := chain.Authorize(context.Background(), identReq("NOPE"))
	require.NoError(t, err)
	assert.Equal(t, models.AuthUnknown, result.Status)
}

func TestLocalListExpiry(t *testing.T) {
	list := NewLocalListStrategy()
	list.SetEnabled(true)
	past := time.Now().Add(-time.Hour)
	list.Put("TAG1", models.AuthAccepted, "", &past)

	result, err := list.Authorize(context.Background(), identReq("TAG1"))
	require.NoError(t, err)
	assert.Equal(t, models.AuthExpired, result.Status)
}

func TestCacheSweepEvictsExpired(t *testing.T) {
	cache := NewCacheStrategy()
	cache.SetEnabled(true)
	cache.Put("TAG1", models.AuthorizationResult{Status: models.AuthAccepted}, -time.Minute)

	evicted := cache.Sweep()
	assert.Equal(t, 1, evicted)
	assert.False(t, cache.CanHandle(context.Background(), identReq("TAG1")))
}

type fakeTransport struct {
	result *models.AuthorizationResult
	err    error
}

func (f *fakeTransport) SendAuthorize(_ context.Context, _ string, _ models.UnifiedIdentifier) (*models.AuthorizationResult, error) {
	return f.result, f.err
}

func TestRemoteStrategyAbstainsWhenOfflineAllowed(t *testing.T) {
	strategy := NewRemoteStrategy(&fakeTransport{})
	req := identReq("TAG1")
	req.AllowOffline = true
	req.StationOnline = false

	result, err := strategy.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRemoteStrategyInvalidWhenOfflineDisallowed(t *testing.T) {
	strategy := NewRemoteStrategy(&fakeTransport{})
	req := identReq("TAG1")
	req.AllowOffline = false
	req.StationOnline = false

	result, err := strategy.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.AuthInvalid, result.Status)
	assert.True(t, result.IsOffline)
}

func TestIsValidIdentifierLengthCaps(t *testing.T) {
	ok16 := models.UnifiedIdentifier{Value: "12345678901234567890"} // 20 chars
	assert.True(t, IsValidIdentifier(ok16, models.OCPPVersion16))

	tooLong16 := models.UnifiedIdentifier{Value: "123456789012345678901"} // 21 chars
	assert.False(t, IsValidIdentifier(tooLong16, models.OCPPVersion16))

	ok20 := models.UnifiedIdentifier{Value: "123456789012345678901234567890123456"} // 36 chars
	assert.True(t, IsValidIdentifier(ok20, models.OCPPVersion2011))
}
