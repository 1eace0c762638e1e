package sigv4gate_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
)

// MockKeyRepo is a mock implementation of sigv4gate.KeyRepo
type MockKeyRepo struct {
	mock.Mock
}

func (m *MockKeyRepo) Lookup(ctx context.Context, accessKey string) (sigv4gate.Credential, error) {
	args := m.Called(ctx, accessKey)
	return args.Get(0).(sigv4gate.Credential), args.Error(1)
}

func (m *MockKeyRepo) Get(ctx context.Context, accessKey string) (sigv4gate.KeyRecord, error) {
	args := m.Called(ctx, accessKey)
	return args.Get(0).(sigv4gate.KeyRecord), args.Error(1)
}

func (m *MockKeyRepo) Upsert(ctx context.Context, entry sigv4gate.KeyEntry) (sigv4gate.KeyRecord, bool, error) {
	args := m.Called(ctx, entry)
	if fn, ok := args.Get(0).(func(context.Context, sigv4gate.KeyEntry) sigv4gate.KeyRecord); ok {
		return fn(ctx, entry), args.Bool(1), args.Error(2)
	}
	return args.Get(0).(sigv4gate.KeyRecord), args.Bool(1), args.Error(2)
}

func (m *MockKeyRepo) Disable(ctx context.Context, accessKey string) error {
	return m.Called(ctx, accessKey).Error(0)
}

func (m *MockKeyRepo) Delete(ctx context.Context, accessKey string) error {
	return m.Called(ctx, accessKey).Error(0)
}

func (m *MockKeyRepo) List(ctx context.Context, q sigv4gate.KeyListQuery) (sigv4gate.KeyListResult, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(sigv4gate.KeyListResult), args.Error(1)
}

type recordingPurger struct {
	purged []string
}

func (p *recordingPurger) Purge(accessKey string) {
	p.purged = append(p.purged, accessKey)
}

func echoUpsert(repo *MockKeyRepo) {
	repo.On("Upsert", mock.Anything, mock.Anything).Return(func(_ context.Context, e sigv4gate.KeyEntry) sigv4gate.KeyRecord {
		return sigv4gate.KeyRecord{AccessKey: e.AccessKey, SecretKey: e.SecretKey, Principal: e.Principal}
	}, true, nil)
}

func TestNewKeyService_NilRepo(t *testing.T) {
	t.Parallel()

	_, err := sigv4gate.NewKeyService(nil, sigv4gate.KeyServiceConfig{})
	assert.ErrorIs(t, err, sigv4gate.ErrInvalidInput)
}

func TestKeyService_Create_Generates(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(e sigv4gate.KeyEntry) bool {
		return strings.HasPrefix(e.AccessKey, "GATE") && len(e.SecretKey) == 40 &&
			e.Principal.Type == sigv4gate.PrincipalUser && e.Principal.Name == e.AccessKey
	})).Return(sigv4gate.KeyRecord{AccessKey: "GATEXXXX"}, true, nil)

	purger := &recordingPurger{}
	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{AccessKeyPrefix: "GATE", Cache: purger})
	require.NoError(t, err)

	record, err := svc.Create(context.Background(), sigv4gate.KeyEntry{})
	require.NoError(t, err)
	assert.Equal(t, "GATEXXXX", record.AccessKey)
	repo.AssertExpectations(t)
	assert.Len(t, purger.purged, 1)
}

func TestKeyService_Create_KeepsGivenValues(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	echoUpsert(repo)
	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{})
	require.NoError(t, err)

	p, err := sigv4gate.ServicePrincipal("billing", "internal")
	require.NoError(t, err)

	record, err := svc.Create(context.Background(), sigv4gate.KeyEntry{AccessKey: "AKIABILLING", SecretKey: "s3cret", Principal: p})
	require.NoError(t, err)
	assert.Equal(t, "AKIABILLING", record.AccessKey)
	assert.Equal(t, "s3cret", record.SecretKey)
	assert.Equal(t, p, record.Principal)
}

func TestKeyService_Create_Invalid(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), sigv4gate.KeyEntry{AccessKey: "bad/key"})
	assert.ErrorIs(t, err, sigv4gate.ErrInvalidInput)

	_, err = svc.Create(context.Background(), sigv4gate.KeyEntry{
		AccessKey: "AKIAOK",
		Principal: sigv4gate.Principal{Type: "group", Name: "x"},
	})
	assert.ErrorIs(t, err, sigv4gate.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Create(ctx, sigv4gate.KeyEntry{})
	assert.ErrorIs(t, err, context.Canceled)

	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestKeyService_Create_RepoError(t *testing.T) {
	t.Parallel()

	repoErr := errors.New("disk full")
	repo := new(MockKeyRepo)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(sigv4gate.KeyRecord{}, false, repoErr)
	purger := &recordingPurger{}

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{Cache: purger})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), sigv4gate.KeyEntry{AccessKey: "AKIAOK"})
	assert.ErrorIs(t, err, repoErr)
	assert.Empty(t, purger.purged)
}

func TestKeyService_DisableRemove(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	repo.On("Disable", mock.Anything, "AKIA1").Return(nil)
	repo.On("Delete", mock.Anything, "AKIA1").Return(nil)
	repo.On("Delete", mock.Anything, "AKIA2").Return(sigv4gate.ErrNotFound)
	purger := &recordingPurger{}

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{Cache: purger})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Disable(ctx, "AKIA1"))
	require.NoError(t, svc.Remove(ctx, "AKIA1"))
	assert.ErrorIs(t, svc.Remove(ctx, "AKIA2"), sigv4gate.ErrNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, ""), sigv4gate.ErrInvalidInput)

	assert.Equal(t, []string{"AKIA1", "AKIA1"}, purger.purged)
	repo.AssertExpectations(t)
}

func TestKeyService_ListAll(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	repo.On("List", mock.Anything, sigv4gate.KeyListQuery{Limit: 100}).
		Return(sigv4gate.KeyListResult{Items: []sigv4gate.KeyRecord{{AccessKey: "A1"}, {AccessKey: "A2"}}, NextCursor: "next"}, nil)
	repo.On("List", mock.Anything, sigv4gate.KeyListQuery{Limit: 100, Cursor: "next"}).
		Return(sigv4gate.KeyListResult{Items: []sigv4gate.KeyRecord{{AccessKey: "A3"}}}, nil)

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{})
	require.NoError(t, err)

	all, err := svc.ListAll(context.Background(), sigv4gate.KeyListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A3", all[2].AccessKey)
	repo.AssertExpectations(t)
}

func TestKeyService_DisablePurgesInProcessCache(t *testing.T) {
	t.Parallel()

	repo := new(MockKeyRepo)
	repo.On("Lookup", mock.Anything, "AKIA1").Return(sigv4gate.Credential{AccessKey: "AKIA1", SecretKey: "s"}, nil).Once()
	repo.On("Lookup", mock.Anything, "AKIA1").Return(sigv4gate.Credential{}, sigv4gate.ErrNotFound).Once()
	repo.On("Disable", mock.Anything, "AKIA1").Return(nil)

	cache := sigv4gate.NewCachedSecretStore(repo, 10, time.Hour)
	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{Cache: cache})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Lookup(ctx, "AKIA1")
	require.NoError(t, err)
	_, err = cache.Lookup(ctx, "AKIA1")
	require.NoError(t, err, "served from cache")
	require.Equal(t, 1, cache.Len())

	require.NoError(t, svc.Disable(ctx, "AKIA1"))
	assert.Zero(t, cache.Len())

	_, err = cache.Lookup(ctx, "AKIA1")
	assert.ErrorIs(t, err, sigv4gate.ErrNotFound)
	repo.AssertExpectations(t)
}
