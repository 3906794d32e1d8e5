package poker

// Pot accumulates the chips staked during a hand. Betting rounds sweep
// player bets in; hand completion takes everything out.
type Pot struct {
	amount int64
}

// Add moves amount chips into the pot.
func (p *Pot) Add(amount int64) {
	if amount > 0 {
		p.amount += amount
	}
}

// Amount returns the chips currently in the pot.
func (p *Pot) Amount() int64 {
	return p.amount
}

// Take empties the pot and returns what was in it.
func (p *Pot) Take() int64 {
	amt := p.amount
	p.amount = 0
	return amt
}

// Reset discards the pot's contents.
func (p *Pot) Reset() {
	p.amount = 0
}

// splitPot divides amount integer-equally among n winners. The remainder
// is paid separately, to the winner seated closest clockwise from the
// dealer.
func splitPot(amount int64, n int) (share, remainder int64) {
	if n <= 0 {
		return 0, amount
	}
	return amount / int64(n), amount % int64(n)
}
