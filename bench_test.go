package bucketmap

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter))
	b.Run("impl=bucketMap", benchSizes(benchmarkBucketMapIter))
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetHit))
	b.Run("impl=bucketMap", benchSizes(benchmarkBucketMapGetHit))
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetMiss))
	b.Run("impl=bucketMap", benchSizes(benchmarkBucketMapGetMiss))
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutGrow))
	b.Run("impl=bucketMap", benchSizes(benchmarkBucketMapPutGrow))
}

func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutDelete))
	b.Run("impl=bucketMap", benchSizes(benchmarkBucketMapPutDelete))
}

// benchSizes runs f over a grid of entry counts. The bucketMap variants size
// the primary table so that buckets average loadPerBucket entries.
func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

const loadPerBucket = 4

func primaryCapacity(n int) int {
	return max(1, n/loadPerBucket)
}

func genKeys(start, end int) []string {
	keys := make([]string, end-start)
	for i := range keys {
		keys[i] = strconv.Itoa(start + i)
	}
	return keys
}

func newBenchMap(b *testing.B, n int) (*Map[string], []string) {
	m, err := New[string](primaryCapacity(n), XXHash)
	if err != nil {
		b.Fatal(err)
	}
	keys := genKeys(0, n)
	for _, k := range keys {
		if err := m.Set(k, k); err != nil {
			b.Fatal(err)
		}
	}
	return m, keys
}

func benchmarkRuntimeMapIter(b *testing.B, n int) {
	m := make(map[string]string, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp int
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += len(k) + len(v)
		}
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkBucketMapIter(b *testing.B, n int) {
	m, _ := newBenchMap(b, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp int
	for i := 0; i < b.N; i++ {
		m.All(func(k Key, v string) bool {
			tmp += int(k.Secondary&1) + len(v)
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRuntimeMapGetMiss(b *testing.B, n int) {
	m := make(map[string]string)
	miss := genKeys(-n, 0)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[miss[i%len(miss)]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkBucketMapGetMiss(b *testing.B, n int) {
	m, _ := newBenchMap(b, n)
	miss := genKeys(-n, 0)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit(b *testing.B, n int) {
	m := make(map[string]string, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys := genKeys(0, n)

	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[keys[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkBucketMapGetHit(b *testing.B, n int) {
	m, keys := newBenchMap(b, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow(b *testing.B, n int) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m := make(map[string]string)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkBucketMapPutGrow(b *testing.B, n int) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m, _ := New[string](primaryCapacity(n), XXHash)
		for _, k := range keys {
			_ = m.Set(k, k)
		}
	}
}

func benchmarkRuntimeMapPutDelete(b *testing.B, n int) {
	m := make(map[string]string, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkBucketMapPutDelete(b *testing.B, n int) {
	m, keys := newBenchMap(b, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Delete(keys[j])
		_ = m.Set(keys[j], keys[j])
	}
}
