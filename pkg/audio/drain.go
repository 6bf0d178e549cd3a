package audio

// DrainPending discards every value currently buffered on ch without
// blocking, returning how many were dropped. Values sent after the call are
// untouched; use this to clear a queue whose producer keeps running.
func DrainPending[T any](ch <-chan T) int {
	var n int
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}
