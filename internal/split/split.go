// Package split divides a polygon into two halves of equal area along an
// east-west line, searching for the cut latitude iteratively.
package split

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/geomutil"
)

// minIncrement is the floor for the search step. Shapefile coordinate
// precision tops out near 1e-9; stepping below that just spins.
const minIncrement = 1e-9

// Options controls the equal-area search.
type Options struct {
	// Tolerance is the minority/majority area ratio the search must reach,
	// in (0, 1). A value of 0.99 means the smaller half must be at least
	// 99% of the larger half.
	Tolerance float64

	// MaxIterations caps the search. Zero means 500.
	MaxIterations int
}

// Result describes the best split found.
type Result struct {
	South      *geom.MultiPolygon // half at or below the cut line
	North      *geom.MultiPolygon // half at or above the cut line
	CutY       float64            // latitude of the cut line
	Ratio      float64            // minority/majority area ratio achieved
	Iterations int
	Converged  bool // true if Ratio > Tolerance was reached
}

// Merge collects polygonal features into a single MultiPolygon so the
// search operates on one shape, as the source features are dissolved
// before splitting.
func Merge(gs ...geom.T) (*geom.MultiPolygon, error) {
	out := geom.NewMultiPolygon(geom.XY)
	for _, g := range gs {
		switch t := g.(type) {
		case *geom.Polygon:
			if srid := t.SRID(); srid != 0 && out.SRID() == 0 {
				out.SetSRID(srid)
			}
			if err := out.Push(t); err != nil {
				return nil, eris.Wrap(err, "split: merge polygon")
			}
		case *geom.MultiPolygon:
			if srid := t.SRID(); srid != 0 && out.SRID() == 0 {
				out.SetSRID(srid)
			}
			for i := 0; i < t.NumPolygons(); i++ {
				if err := out.Push(t.Polygon(i)); err != nil {
					return nil, eris.Wrap(err, "split: merge polygon part")
				}
			}
		default:
			return nil, eris.Errorf("split: unsupported geometry type %T", g)
		}
	}
	if out.NumPolygons() == 0 {
		return nil, eris.New("split: no polygonal input")
	}
	return out, nil
}

// EqualArea finds a horizontal cut that divides the geometry into two
// near-equal areas. Starting from the vertical midpoint of the extent, the
// cut line moves toward the larger half; each time the direction reverses
// the step shrinks tenfold, narrowing in on the balance point.
func EqualArea(g geom.T, opts Options) (*Result, error) {
	if opts.Tolerance <= 0 || opts.Tolerance >= 1 {
		return nil, eris.Errorf("split: tolerance %v outside (0, 1)", opts.Tolerance)
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 500
	}

	total := geomutil.Area(g)
	if total <= 0 {
		return nil, eris.New("split: input has no area")
	}

	bounds := g.Bounds()
	yMin, yMax := bounds.Min(1), bounds.Max(1)
	if yMax <= yMin {
		return nil, eris.New("split: degenerate vertical extent")
	}

	cut := (yMax-yMin)/2 + yMin
	increment := (yMax - yMin) / 2 / 10

	log := zap.L().With(zap.String("component", "split"))

	best := &Result{Ratio: -1}
	var lastDirection int // +1 north, -1 south, 0 unset

	for iter := 1; iter <= maxIter; iter++ {
		south := geomutil.ClipSouth(g, cut)
		north := geomutil.ClipNorth(g, cut)

		southArea := geomutil.MultiPolygonArea(south)
		northArea := geomutil.MultiPolygonArea(north)

		high, low := southArea, northArea
		direction := -1 // larger half is south of the line: move down
		if northArea > southArea {
			high, low = northArea, southArea
			direction = 1
		}

		var ratio float64
		if high > 0 {
			ratio = low / high
		}

		if ratio > best.Ratio {
			best = &Result{
				South:      south,
				North:      north,
				CutY:       cut,
				Ratio:      ratio,
				Iterations: iter,
			}
		}

		log.Debug("bisect step",
			zap.Int("iteration", iter),
			zap.Float64("cut_y", cut),
			zap.Float64("ratio", ratio),
			zap.Float64("increment", increment),
		)

		if ratio > opts.Tolerance {
			best.Converged = true
			best.Iterations = iter
			return best, nil
		}

		// Shrink the step on every reversal; bail out once it drops below
		// coordinate precision.
		if lastDirection != 0 && direction != lastDirection {
			increment /= 10
			if increment < minIncrement {
				break
			}
			if increment < 1e-8 {
				increment = minIncrement
			}
		}
		lastDirection = direction

		cut += float64(direction) * increment
		cut = math.Min(math.Max(cut, yMin), yMax)
	}

	if best.South == nil {
		return nil, eris.New("split: search produced no candidate split")
	}
	return best, nil
}
