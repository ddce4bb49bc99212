// Package pagination normalizes caller-supplied page sizes.
package pagination

// LimitConfig bounds a list limit.
type LimitConfig struct {
	Default int
	Max     int
}

// ClampLimit applies the default to non-positive values and caps at Max.
func ClampLimit(value int, cfg LimitConfig) int {
	limit := value
	if limit <= 0 {
		limit = cfg.Default
	}
	if cfg.Max > 0 && limit > cfg.Max {
		limit = cfg.Max
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}
