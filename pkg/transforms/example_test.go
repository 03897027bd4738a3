package transforms

import (
	"context"
	"fmt"
	"strings"

	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Example demonstrates chaining transforms between a source and a consumer.
func Example() {
	ctx := context.Background()

	words := streams.FromSlice([]string{"go", "streams", "are", "backpressured"})
	long, _ := streams.PipeThrough[string, string](ctx, words, Filter(func(w string) bool { return len(w) > 2 }), streams.PipeOptions{})
	upper, _ := streams.PipeThrough[string, string](ctx, long, Map(strings.ToUpper), streams.PipeOptions{})

	items, err := streams.ReadAll(ctx, upper)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(items)
	// Output: [STREAMS ARE BACKPRESSURED]
}

// ExampleBatch demonstrates grouping chunks.
func ExampleBatch() {
	ctx := context.Background()

	batch, _ := Batch[int](3)
	out, _ := streams.PipeThrough[int, []int](ctx, streams.FromSlice([]int{1, 2, 3, 4, 5, 6, 7}), batch, streams.PipeOptions{})

	batches, _ := streams.ReadAll(ctx, out)
	fmt.Println(batches)
	// Output: [[1 2 3] [4 5 6] [7]]
}
