package helpers

// Float64Pointer returns a pointer to the given float64 value.
func Float64Pointer(f float64) *float64 {
	return &f
}

func IntPointer(i int) *int {
	return &i
}

func StringPointer(s string) *string {
	return &s
}

// Int64Pointer is used for durations in event metadata.
func Int64Pointer(i int64) *int64 {
	return &i
}
