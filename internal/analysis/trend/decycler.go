package trend

// DefaultAlpha is the smoothing coefficient used when none is configured.
const DefaultAlpha = 0.07

// Decycler applies a recursive low-pass decomposition to a price series,
// isolating the slow trend component. Fewer than 3 inputs yield no output.
//
// Seeded with the first two raw prices, then for i >= 2:
//
//	f[i] = (a/2)(p[i]+p[i-1]) + (1-a)f[i-1] - ((1-a)/4)(f[i-1]-f[i-2])
//
// The recurrence only looks at the previous raw price and the two previous
// filtered values, so batch and incremental evaluation are bit-identical.
func Decycler(prices []float64, alpha float64) []float64 {
	if len(prices) < 3 {
		return nil
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	out := make([]float64, len(prices))
	out[0] = prices[0]
	out[1] = prices[1]
	for i := 2; i < len(prices); i++ {
		out[i] = alpha/2*(prices[i]+prices[i-1]) +
			(1-alpha)*out[i-1] -
			(1-alpha)/4*(out[i-1]-out[i-2])
	}
	return out
}

// DecyclerStream evaluates the same recurrence one price at a time.
type DecyclerStream struct {
	alpha   float64
	seen    int
	prevRaw float64
	f1      float64 // f[i-1]
	f2      float64 // f[i-2]
}

func NewDecyclerStream(alpha float64) *DecyclerStream {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &DecyclerStream{alpha: alpha}
}

// Push consumes the next price and returns the corresponding filtered value.
func (s *DecyclerStream) Push(price float64) float64 {
	defer func() {
		s.prevRaw = price
		s.seen++
	}()
	switch s.seen {
	case 0:
		s.f1 = price
		return price
	case 1:
		s.f2 = s.f1
		s.f1 = price
		return price
	}
	f := s.alpha/2*(price+s.prevRaw) +
		(1-s.alpha)*s.f1 -
		(1-s.alpha)/4*(s.f1-s.f2)
	s.f2 = s.f1
	s.f1 = f
	return f
}
