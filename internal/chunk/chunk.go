package chunk

// Split partitions list into consecutive groups of at most size elements,
// preserving order. size <= 0 yields one group holding every element; an empty
// list yields no groups. The groups share list's backing array.
func Split[T any](list []T, size int) [][]T {
	if len(list) == 0 {
		return nil
	}
	if size <= 0 || size >= len(list) {
		return [][]T{list}
	}
	out := make([][]T, 0, (len(list)+size-1)/size)
	for start := 0; start < len(list); start += size {
		end := min(start+size, len(list))
		out = append(out, list[start:end:end])
	}
	return out
}
