package bucketmap_test

import (
	"fmt"

	"github.com/cockroachdb/bucketmap"
)

func Example() {
	m, err := bucketmap.New[string](100, bucketmap.XXHash,
		bucketmap.WithDestroy(func(v string) {
			fmt.Printf("destroy %s\n", v)
		}))
	if err != nil {
		panic(err)
	}
	defer m.Close()

	_ = m.Set("key1", "Hello")
	_ = m.Set("key1", "World")

	if v, ok := m.Get("key1"); ok {
		fmt.Println(v)
	}
	if v, ok := m.Delete("key1"); ok {
		fmt.Printf("deleted %s\n", v)
	}
	_, ok := m.Get("key1")
	fmt.Println(ok)
	// Output:
	// destroy Hello
	// World
	// deleted World
	// false
}

func ExampleMap_All() {
	m, err := bucketmap.New[int](1, bucketmap.XXHash)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	for i, k := range []string{"a", "b", "c"} {
		_ = m.Set(k, i+1)
	}

	var sum int
	m.All(func(_ bucketmap.Key, v int) bool {
		sum += v
		return true
	})
	fmt.Println(m.Len(), sum)
	// Output:
	// 3 6
}
