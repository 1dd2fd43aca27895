package bucket

import (
	"fmt"
	"time"
)

func ExampleMap() {
	m, err := New(Config{
		Default: BucketConfig{Capacity: 2, RefillRatePerSec: 1},
	})
	if err != nil {
		panic(err)
	}

	now := time.Now()
	fmt.Println(m.Approve("user_123", 1, now))
	fmt.Println(m.Approve("user_123", 1, now))
	fmt.Println(m.Approve("user_123", 1, now))
	fmt.Println(m.Approve("user_123", 1, now.Add(time.Second)))
	// Output:
	// true
	// true
	// false
	// true
}
