package sparse

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/driftline/odometry.report/internal/vo"
)

// Damping added to the normal equations. A single pinhole observation
// leaves the point rank-deficient along the viewing ray, so the step is
// Levenberg-Marquardt rather than plain Gauss-Newton.
const lmDamping = 1e-3

// Step norm below which iteration stops early.
const convergenceEps = 1e-6

// OptimizeStructure refines up to maxPoints of the landmarks observed in
// this frame, spending at most maxIter damped Gauss-Newton iterations per
// point. Points with the fewest accumulated observations are refined first
// since their positions carry the most triangulation error. Best effort;
// a point whose normal equations cannot be solved is simply skipped.
func (p *Pipeline) OptimizeStructure(frame *vo.Frame, m *vo.Map, maxPoints, maxIter int) {
	if maxPoints <= 0 || maxIter <= 0 {
		return
	}

	// Collect the observed landmarks with their pixel measurements.
	type observed struct {
		point   *vo.MapPoint
		feature vo.Feature
	}
	candidates := make([]observed, 0, len(frame.Features))
	for _, f := range frame.Features {
		pt := m.Point(f.ID)
		if pt == nil || pt.Z <= 0 {
			continue
		}
		candidates = append(candidates, observed{point: pt, feature: f})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].point.Observations < candidates[j].point.Observations
	})
	if len(candidates) > maxPoints {
		candidates = candidates[:maxPoints]
	}

	refined := 0
	for _, c := range candidates {
		if p.refinePoint(c.point, c.feature, maxIter) {
			refined++
		}
	}
	tracef("[Sparse] Structure refinement: %d/%d points updated at frame %d", refined, len(candidates), frame.ID)
}

// refinePoint runs the damped Gauss-Newton iteration for one landmark
// against its pixel observation. Returns whether the point moved.
func (p *Pipeline) refinePoint(pt *vo.MapPoint, f vo.Feature, maxIter int) bool {
	fl := p.cfg.FocalLength
	x, y, z := pt.X, pt.Y, pt.Z
	moved := false

	for iter := 0; iter < maxIter; iter++ {
		if z <= 0 {
			break
		}

		// Reprojection residual under the pinhole model.
		ru := fl*x/z - f.X
		rv := fl*y/z - f.Y

		// Jacobian of the residual w.r.t. (x, y, z).
		j00 := fl / z
		j02 := -fl * x / (z * z)
		j11 := fl / z
		j12 := -fl * y / (z * z)

		// Normal equations H delta = -g with H = J^T J + lambda I.
		h := mat.NewSymDense(3, []float64{
			j00*j00 + lmDamping, 0, j00 * j02,
			0, j11*j11 + lmDamping, j11 * j12,
			j00 * j02, j11 * j12, j02*j02 + j12*j12 + lmDamping,
		})
		g := mat.NewVecDense(3, []float64{
			-(j00 * ru),
			-(j11 * rv),
			-(j02*ru + j12*rv),
		})

		var chol mat.Cholesky
		if ok := chol.Factorize(h); !ok {
			break
		}
		var delta mat.VecDense
		if err := chol.SolveVecTo(&delta, g); err != nil {
			break
		}

		x += delta.AtVec(0)
		y += delta.AtVec(1)
		z += delta.AtVec(2)
		moved = true

		if math.Hypot(math.Hypot(delta.AtVec(0), delta.AtVec(1)), delta.AtVec(2)) < convergenceEps {
			break
		}
	}

	if moved && z > 0 {
		pt.X, pt.Y, pt.Z = x, y, z
		return true
	}
	return false
}
