package core

const (
	SECONDS_PER_YEAR = 31_536_000
)

var (
	ONE     = NewFixedFromInt(1)
	HUNDRED = NewFixedFromInt(100)

	// MaxHealthRatio is the "maximally healthy" sentinel returned when an
	// account has no weighted assets and non-negative health. It is a
	// distinguished value, not a numeric overflow.
	MaxHealthRatio = MaxFixed()
)
