package host

import (
	"fmt"
	"math"
)

// nearestPoint mirrors kernels/nearest_point.cl, including its handling of
// NaN distances: they never compare below bestDist, so such points keep
// centroid 0.
//
// Arguments: result, points, n, centroids, k, dim.
func nearestPoint(args []any) (func(gid int), error) {
	if len(args) != 6 {
		return nil, fmt.Errorf("nearest_point: want 6 arguments, got %d", len(args))
	}
	result, ok1 := args[0].(*Buffer)
	points, ok2 := args[1].(*Buffer)
	n, ok3 := args[2].(int32)
	centroids, ok4 := args[3].(*Buffer)
	k, ok5 := args[4].(int32)
	dim, ok6 := args[5].(int32)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, fmt.Errorf("nearest_point: argument types do not match signature")
	}
	if n < 0 || k <= 0 || dim <= 0 {
		return nil, fmt.Errorf("nearest_point: n=%d k=%d dim=%d", n, k, dim)
	}

	total := int(n) * int(dim)
	if total > len(points.data) || total > len(result.data) {
		return nil, fmt.Errorf("nearest_point: %d scalars exceed buffer size", total)
	}
	if int(k)*int(dim) > len(centroids.data) {
		return nil, fmt.Errorf("nearest_point: %d centroids exceed buffer size", k)
	}

	out, in, cs := result.data, points.data, centroids.data
	D, K := int(dim), int(k)

	return func(gid int) {
		if gid >= total {
			return
		}
		p := gid / D
		d := gid - p*D
		pt := in[p*D : p*D+D]

		best := 0
		bestDist := float32(math.Inf(1))
		for c := 0; c < K; c++ {
			ct := cs[c*D : c*D+D]
			var sum float32
			for j := 0; j < D; j++ {
				diff := pt[j] - ct[j]
				sum += diff * diff
			}
			if sum < bestDist {
				bestDist = sum
				best = c
			}
		}
		out[gid] = cs[best*D+d]
	}, nil
}
