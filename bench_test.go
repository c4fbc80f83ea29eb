package hashtable

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"github.com/llxisdsh/pb"
)

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkHashtableIter[int64], genKeys[int64]))
	})
	b.Run("impl=pbMapOf", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkPBMapIter[int64], genKeys[int64]))
	})
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtableGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtableGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtableGetHit[string], genKeys[string]))
	})
	b.Run("impl=pbMapOf", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkPBMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkPBMapGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkPBMapGetHit[string], genKeys[string]))
	})
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtableGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtableGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtableGetMiss[string], genKeys[string]))
	})
	b.Run("impl=hashtable/probing=triangular", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtableGetMissTriangular[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkHashtableGetMissTriangular[string], genKeys[string]))
	})
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapPutGrow[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtablePutGrow[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtablePutGrow[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtablePutGrow[string], genKeys[string]))
	})
	b.Run("impl=pbMapOf", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkPBMapPutGrow[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkPBMapPutGrow[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkPBMapPutGrow[string], genKeys[string]))
	})
}

func BenchmarkMapPutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutPreAllocate[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapPutPreAllocate[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutPreAllocate[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtablePutPreAllocate[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtablePutPreAllocate[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtablePutPreAllocate[string], genKeys[string]))
	})
}

func BenchmarkMapPutReuse(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutReuse[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapPutReuse[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutReuse[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtablePutReuse[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtablePutReuse[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtablePutReuse[string], genKeys[string]))
	})
}

func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapPutDelete[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=hashtable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashtablePutDelete[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashtablePutDelete[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkHashtablePutDelete[string], genKeys[string]))
	})
	b.Run("impl=pbMapOf", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkPBMapPutDelete[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkPBMapPutDelete[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkPBMapPutDelete[string], genKeys[string]))
	})
}

type benchTypes interface {
	int32 | int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
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
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	var t T
	switch any(t).(type) {
	case int32:
		keys := make([]int32, end-start)
		for i := range keys {
			keys[i] = int32(start + i)
		}
		return unsafeConvertSlice[T](keys)
	case int64:
		keys := make([]int64, end-start)
		for i := range keys {
			keys[i] = int64(start + i)
		}
		return unsafeConvertSlice[T](keys)
	case string:
		keys := make([]string, end-start)
		for i := range keys {
			keys[i] = strconv.Itoa(start + i)
		}
		return unsafeConvertSlice[T](keys)
	default:
		panic("not reached")
	}
}

func newBenchMap[T comparable](b *testing.B, n int, options ...Option[T, T]) *Map[T, T] {
	m, err := New[T, T](n, DefaultLoadFactor, options...)
	if err != nil {
		b.Fatal(err)
	}
	return m
}

func putAll[T comparable](b *testing.B, m *Map[T, T], keys []T) {
	for _, k := range keys {
		if _, _, err := m.Put(k, k); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkHashtableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchMap[T](b, n)
	putAll(b, m, genKeys(0, n))
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m.All {
			tmp += k + v
		}
	}
}

func benchmarkPBMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	var m pb.MapOf[T, T]
	for _, k := range genKeys(0, n) {
		m.Store(k, k)
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		m.Range(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkHashtableGetMiss[T comparable](b *testing.B, n int, genKeys func(start, end int) []T) {
	benchmarkGetMiss(b, newBenchMap[T](b, 0), n, genKeys)
}

func benchmarkHashtableGetMissTriangular[T comparable](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	benchmarkGetMiss(b, newBenchMap[T](b, 0, WithProbing[T, T](TriangularProbing)), n, genKeys)
}

func benchmarkGetMiss[T comparable](
	b *testing.B, m *Map[T, T], n int, genKeys func(start, end int) []T,
) {
	putAll(b, m, genKeys(0, n))
	miss := genKeys(-n, 0)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison. This is reasonable to do because looking
	// up a value by a string key which shares the underlying string data with
	// the element in the map is a rare pattern.
	keys = genKeys(0, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkHashtableGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	putAll(b, m, keys)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkPBMapGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	var m pb.MapOf[T, T]
	keys := genKeys(0, n)
	for _, k := range keys {
		m.Store(k, k)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Load(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkHashtablePutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		putAll(b, newBenchMap[T](b, 0), keys)
	}
}

func benchmarkPBMapPutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var m pb.MapOf[T, T]
		for _, k := range keys {
			m.Store(k, k)
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkHashtablePutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	// Size the table so that n entries fit under the load threshold.
	capacity, err := growCapacity(n, DefaultLoadFactor)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		putAll(b, newBenchMap[T](b, capacity), keys)
	}
}

func benchmarkRuntimeMapPutReuse[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			m[k] = k
		}
		for k := range m {
			delete(m, k)
		}
	}
}

func benchmarkHashtablePutReuse[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		putAll(b, m, keys)
		m.Clear()
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkHashtablePutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	putAll(b, m, keys)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Delete(keys[j])
		if _, _, err := m.Put(keys[j], keys[j]); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkPBMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	var m pb.MapOf[T, T]
	keys := genKeys(0, n)
	for _, k := range keys {
		m.Store(k, k)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Delete(keys[j])
		m.Store(keys[j], keys[j])
	}
}
