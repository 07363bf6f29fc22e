package lint

import "strconv"

func pctLabel(pct uint64) string {
	return strconv.FormatUint(pct, 10) + "%"
}

func msLabel(ms uint64) string {
	return strconv.FormatUint(ms, 10) + "ms"
}
