package util

import "strconv"

// SafeParseInt64 parses s as a base-10 integer, returning 0 for anything
// that does not parse. Used on wire fields where a zero id is already
// treated as "absent" by the caller.
func SafeParseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SafeParseInt is SafeParseInt64 narrowed for counters and limits.
func SafeParseInt(s string) int {
	return int(SafeParseInt64(s))
}

// SafeParseBool accepts the usual truthy spellings; everything else is false.
func SafeParseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return v
}
