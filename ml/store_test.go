package ml_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"krishimitra/ml"
	"krishimitra/ml/mltest"
)

func cropStore(t *testing.T, dir string) *ml.Store {
	t.Helper()
	return ml.NewStore(dir, []ml.Spec{{
		ID:        "crop",
		Artifacts: []ml.ArtifactSpec{{Role: ml.RoleClassifier, Path: "crop.json"}},
	}}, zap.NewNop())
}

func writeCrop(t *testing.T, dir string, classes ...string) {
	t.Helper()
	mltest.Write(t, dir, "crop.json", ml.KindForestClassifier, mltest.CropClassifier(classes, 1))
}

func TestStoreLoadNotFound(t *testing.T) {
	store := cropStore(t, t.TempDir())

	_, err := store.Load("crop")
	require.Error(t, err)
	assert.True(t, ml.IsNotFound(err))
	assert.Nil(t, store.Current("crop"))

	last := store.LastAttempt("crop")
	require.NotNil(t, last)
	assert.Error(t, last.Err)
}

func TestStoreLoadUnknownID(t *testing.T) {
	store := cropStore(t, t.TempDir())
	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ml.ErrUnknownModel)
}

func TestStoreRoleMismatchIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	mltest.Write(t, dir, "crop.json", ml.KindStandardScaler, mltest.IdentityScaler(3))
	store := cropStore(t, dir)

	_, err := store.Load("crop")
	var le *ml.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ml.Corrupt, le.Kind)
}

func TestStoreFailedReloadKeepsHandle(t *testing.T) {
	dir := t.TempDir()
	writeCrop(t, dir, "rice", "maize")
	store := cropStore(t, dir)

	first, err := store.Load("crop")
	require.NoError(t, err)
	assert.Same(t, first, store.Current("crop"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "crop.json"), []byte("garbage"), 0o600))
	_, err = store.Load("crop")
	require.Error(t, err)
	assert.Same(t, first, store.Current("crop"))

	writeCrop(t, dir, "rice", "maize", "jute")
	second, err := store.Load("crop")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"rice", "maize", "jute"}, store.Current("crop").Classifier.Labels())
}

func TestEnsureLoadedConcurrentReadersSeeWholeHandles(t *testing.T) {
	dir := t.TempDir()
	writeCrop(t, dir, "rice", "maize")
	guard := ml.NewGuard(cropStore(t, dir), zap.NewNop())

	var loads int
	var mu sync.Mutex
	guard.OnLoad(func(id string, err error) {
		mu.Lock()
		loads++
		mu.Unlock()
	})

	const workers = 32
	var wg sync.WaitGroup
	handles := make([]*ml.Handle, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			avail := guard.EnsureLoaded(context.Background(), "crop")
			if avail.Status == ml.Ready {
				handles[i] = avail.Handle
			}
		}(i)
	}
	wg.Wait()

	for i, h := range handles {
		require.NotNil(t, h, "worker %d", i)
		require.NotNil(t, h.Classifier, "worker %d", i)
		assert.Len(t, h.Classifier.Labels(), 2)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, loads, 1)
	assert.Less(t, loads, workers)
}

func TestReloadDuringReadsNeverTears(t *testing.T) {
	dir := t.TempDir()
	writeCrop(t, dir, "a", "b")
	store := cropStore(t, dir)
	guard := ml.NewGuard(store, zap.NewNop())
	require.Equal(t, ml.Ready, guard.EnsureLoaded(context.Background(), "crop").Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan string, 1)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				h := store.Current("crop")
				proba, err := h.Classifier.PredictProba([]float64{10})
				if err != nil || len(proba) != len(h.Classifier.Labels()) {
					select {
					case errs <- "torn handle observed":
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			writeCrop(t, dir, "a", "b", "c")
		} else {
			writeCrop(t, dir, "a", "b")
		}
		_ = guard.Reload(context.Background(), "crop")
	}
	cancel()
	wg.Wait()

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}
