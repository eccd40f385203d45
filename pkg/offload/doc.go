// Package offload moves heavy compute updates off the caller's goroutine.
//
// A Dispatcher predicts whether a slice value is heavy (its JSON encoding is
// larger than Config.Threshold) and, if so, computes the next value on a
// bounded worker pool:
//
//	d := offload.New(offload.DefaultConfig(), logger)
//	defer d.Close()
//
//	err := offload.Apply(ctx, d, s, postsKey, func(prev []Post) []Post {
//	    return rank(prev)
//	})
//
// The result is committed only if the slice did not change while it was
// computed; otherwise the function runs again against the latest value. If
// no worker is free or the computation times out, the update runs inline.
// Listeners observe exactly the same commits either way.
package offload
