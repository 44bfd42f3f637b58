package pyramid

import (
	"testing"

	"channelpyramid/internal/models"
)

// TestReduceShape verifies the floor-divide shape law, including odd
// dimensions that are trimmed before reduction
func TestReduceShape(t *testing.T) {
	cases := []struct {
		w, h   int
		ew, eh int
	}{
		{200, 200, 100, 100},
		{25, 25, 12, 12},
		{7, 4, 3, 2},
		{2, 2, 1, 1},
	}
	for _, c := range cases {
		out, err := Reduce(models.NewPixelPlane(c.w, c.h))
		if err != nil {
			t.Fatalf("Reduce(%dx%d) failed: %v", c.w, c.h, err)
		}
		if out.Width != c.ew || out.Height != c.eh {
			t.Errorf("Reduce(%dx%d): expected %dx%d, got %dx%d",
				c.w, c.h, c.ew, c.eh, out.Width, out.Height)
		}
	}
}

// TestReduceUniformValue verifies that a uniform plane stays uniform at every
// level, for values across the full 16-bit range
func TestReduceUniformValue(t *testing.T) {
	for _, v := range []uint16{0, 1, 1000, 32768, 65535} {
		plane := models.NewPixelPlane(64, 64)
		plane.Fill(v)

		for level := 1; level <= 5; level++ {
			out, err := Reduce(plane)
			if err != nil {
				t.Fatalf("Reduce level %d (v=%d) failed: %v", level, v, err)
			}
			for i, got := range out.Pix {
				if got != v {
					t.Fatalf("Level %d sample %d: expected %d, got %d", level, i, v, got)
				}
			}
			plane = out
		}
	}
}

// TestReduceBlockMean verifies the arithmetic mean of each 2x2 block with
// truncation toward zero
func TestReduceBlockMean(t *testing.T) {
	plane := models.NewPixelPlane(4, 2)
	copy(plane.Pix, []uint16{
		10, 20, 1, 2,
		30, 40, 2, 2,
	})

	out, err := Reduce(plane)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	// (10+20+30+40)/4 = 25, (1+2+2+2)/4 = 1.75 truncated to 1
	if out.Pix[0] != 25 {
		t.Errorf("Expected block mean 25, got %d", out.Pix[0])
	}
	if out.Pix[1] != 1 {
		t.Errorf("Expected truncated block mean 1, got %d", out.Pix[1])
	}
}

// TestReduceNoOverflow verifies that maximal samples do not overflow the
// accumulator
func TestReduceNoOverflow(t *testing.T) {
	plane := models.NewPixelPlane(2, 2)
	plane.Fill(65535)

	out, err := Reduce(plane)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if out.Pix[0] != 65535 {
		t.Errorf("Expected 65535, got %d", out.Pix[0])
	}
}

// TestReduceTrimsOddRemainder verifies trimmed rows/columns do not contribute
// to the result
func TestReduceTrimsOddRemainder(t *testing.T) {
	plane := models.NewPixelPlane(3, 3)
	plane.Fill(100)
	// Poison the trimmed last row and column; they must be discarded
	for x := 0; x < 3; x++ {
		plane.Set(x, 2, 65535)
	}
	for y := 0; y < 3; y++ {
		plane.Set(2, y, 65535)
	}

	out, err := Reduce(plane)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if out.Width != 1 || out.Height != 1 {
		t.Fatalf("Expected 1x1 result, got %dx%d", out.Width, out.Height)
	}
	if out.Pix[0] != 100 {
		t.Errorf("Trimmed samples leaked into reduction: got %d, expected 100", out.Pix[0])
	}
}

// TestReduceExhausted verifies degenerate dimensions are rejected
func TestReduceExhausted(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {1, 64}, {64, 1}} {
		if _, err := Reduce(models.NewPixelPlane(dims[0], dims[1])); err == nil {
			t.Errorf("Expected pyramid-exhausted error for %dx%d plane", dims[0], dims[1])
		}
	}
}

// TestIterativeReductionChain verifies the 200-pixel chain from the reference
// behavior: 200 -> 100 -> 50 -> 25 -> 12 -> 6
func TestIterativeReductionChain(t *testing.T) {
	plane := models.NewPixelPlane(200, 200)
	want := []int{100, 50, 25, 12, 6}

	for level, dim := range want {
		out, err := Reduce(plane)
		if err != nil {
			t.Fatalf("Level %d failed: %v", level+1, err)
		}
		if out.Width != dim || out.Height != dim {
			t.Errorf("Level %d: expected %dx%d, got %dx%d", level+1, dim, dim, out.Width, out.Height)
		}
		plane = out
	}
}

// BenchmarkReduce measures reduction of a 2048x2048 plane
func BenchmarkReduce(b *testing.B) {
	plane := models.NewPixelPlane(2048, 2048)
	for i := range plane.Pix {
		plane.Pix[i] = uint16(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Reduce(plane); err != nil {
			b.Fatal(err)
		}
	}
}
