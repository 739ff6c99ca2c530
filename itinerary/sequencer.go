package itinerary

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"tripplanner/places"
)

var ErrUnlocatedStop = errors.New("stop has no coordinates")

// Sequencer orders located stops into a short walking route.
type Sequencer struct {
	geo GeoServices
}

func NewSequencer(geo GeoServices) *Sequencer {
	return &Sequencer{geo: geo}
}

// Order returns stops in nearest-neighbor order starting from the first one.
func (s *Sequencer) Order(ctx context.Context, stops []Stop) ([]Stop, error) {
	if len(stops) < 2 {
		return stops, nil
	}

	points := make([]places.LatLng, len(stops))
	for i, stop := range stops {
		at, ok := stop.Location()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnlocatedStop, stop.Name)
		}
		points[i] = at
	}

	matrix, err := s.geo.DistanceMatrix(ctx, points)
	if err != nil {
		return nil, err
	}
	if len(matrix) != len(points) {
		return nil, fmt.Errorf("distance matrix has %d rows, want %d", len(matrix), len(points))
	}
	for i, row := range matrix {
		if len(row) != len(points) {
			return nil, fmt.Errorf("distance matrix row %d has %d columns, want %d", i, len(row), len(points))
		}
	}

	return lo.Map(NearestNeighbor(matrix), func(i int, _ int) Stop {
		return stops[i]
	}), nil
}

// NearestNeighbor walks the matrix greedily from index 0, always moving to
// the cheapest unvisited index. Ties go to the lower index, and when every
// remaining cost is infinite the lowest remaining index is taken.
func NearestNeighbor(matrix [][]float64) []int {
	n := len(matrix)
	if n == 0 {
		return nil
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	current := 0
	visited[current] = true
	order = append(order, current)

	for len(order) < n {
		next, best := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			cost := matrix[current][j]
			if math.IsNaN(cost) {
				cost = math.Inf(1)
			}
			if next == -1 || cost < best {
				next, best = j, cost
			}
		}
		visited[next] = true
		order = append(order, next)
		current = next
	}
	return order
}
