package bench

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/kvs/storage"
)

func BenchmarkSet(b *testing.B) {
	sizes := []int{10, 1024, 100 * 1024}
	sizeNames := []string{"10", "1k", "100k"}

	for i, s := range sizes {
		b.Run(fmt.Sprintf("valueSize=%s/v=KVS", sizeNames[i]), func(b *testing.B) {
			eng, done := openKVS(b)
			defer done()
			runSetBench(b, eng, s)
		})
		b.Run(fmt.Sprintf("valueSize=%s/v=Sled", sizeNames[i]), func(b *testing.B) {
			eng, done := openSled(b)
			defer done()
			runSetBench(b, eng, s)
		})
	}
}

func BenchmarkGet(b *testing.B) {
	sizes := []int{10, 1024, 100 * 1024}
	sizeNames := []string{"10", "1k", "100k"}

	for i, s := range sizes {
		b.Run(fmt.Sprintf("valueSize=%s/v=KVS", sizeNames[i]), func(b *testing.B) {
			eng, done := openKVS(b)
			defer done()
			runGetBench(b, eng, s)
		})
		b.Run(fmt.Sprintf("valueSize=%s/v=Sled", sizeNames[i]), func(b *testing.B) {
			eng, done := openSled(b)
			defer done()
			runGetBench(b, eng, s)
		})
	}
}

func openKVS(b *testing.B) (storage.Engine, func()) {
	tmpDir, err := os.MkdirTemp("", "kvs-bench-*")
	require.NoError(b, err)

	eng, err := storage.Open(tmpDir)
	require.NoError(b, err)

	return eng, func() {
		eng.Close()
		os.RemoveAll(tmpDir)
	}
}

func openSled(b *testing.B) (storage.Engine, func()) {
	tmpDir, err := os.MkdirTemp("", "kvs-sled-bench-*")
	require.NoError(b, err)

	eng, err := storage.NewBoltEngine(filepath.Join(tmpDir, "bench.sled"))
	require.NoError(b, err)

	return eng, func() {
		eng.Close()
		os.RemoveAll(tmpDir)
	}
}

func runSetBench(b *testing.B, eng storage.Engine, valueSize int) {
	value := randString(valueSize)
	hist := hdrhistogram.New(1, 1_000_000_000, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i)
		start := time.Now()
		if err := eng.Set(key, value); err != nil {
			b.Fatal(err)
		}
		hist.RecordValue(time.Since(start).Microseconds())
	}
	b.StopTimer()

	b.ReportMetric(float64(hist.ValueAtQuantile(50)), "p50-us")
	b.ReportMetric(float64(hist.ValueAtQuantile(99)), "p99-us")
}

func runGetBench(b *testing.B, eng storage.Engine, valueSize int) {
	value := randString(valueSize)
	const population = 1000
	for i := 0; i < population; i++ {
		if err := eng.Set(fmt.Sprintf("key-%d", i), value); err != nil {
			b.Fatal(err)
		}
	}

	hist := hdrhistogram.New(1, 1_000_000_000, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i%population)
		start := time.Now()
		if _, _, err := eng.Get(key); err != nil {
			b.Fatal(err)
		}
		hist.RecordValue(time.Since(start).Microseconds())
	}
	b.StopTimer()

	b.ReportMetric(float64(hist.ValueAtQuantile(50)), "p50-us")
	b.ReportMetric(float64(hist.ValueAtQuantile(99)), "p99-us")
}

func randString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}
