package boardgame

// Dice is the deterministic dice used for wheel outcomes and shuffles. It is
// a plain linear congruential generator; the constants are part of the
// provable commitment, so a library PRNG cannot be substituted:
//
//	seed' = seed*1103515245 + 12345 (mod 2^64)
//	roll  = min + ((seed' >> 16) mod (max-min+1))
type Dice struct {
	Min  uint8  `json:"min"`
	Max  uint8  `json:"max"`
	Seed uint64 `json:"seed"`
}

// NewDice creates a dice rolling values in [min, max].
func NewDice(min, max uint8, seed uint64) Dice {
	if min >= max {
		panic("dice: min must be less than max")
	}
	return Dice{Min: min, Max: max, Seed: seed}
}

// Roll advances the generator and returns the next value.
func (d *Dice) Roll() uint8 {
	d.Seed = d.Seed*1103515245 + 12345
	r := uint64(d.Max-d.Min) + 1
	return d.Min + uint8((d.Seed>>16)%r)
}

// Shuffle permutes the slice with Fisher-Yates driven by Roll.
func (d *Dice) Shuffle(n int, swap func(i, j int)) {
	if n < 2 {
		return
	}
	for i := n - 1; i >= 1; i-- {
		j := int(d.Roll()) % (i + 1)
		swap(i, j)
	}
}
