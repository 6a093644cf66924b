// Package locator narrows eligible technicians to those near a booking.
package locator

import (
	"context"
	"fmt"
	"strings"

	"fixitBack/internal/homeservice/geo"
	"fixitBack/internal/homeservice/repo"
)

// Search stages reported in Result.
const (
	StageRadius  = "radius"
	StagePincode = "pincode"
	StageCity    = "city"
	StageState   = "state"
	StageNone    = "none"
)

// Point is a booking location.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether p is usable for a GEO search.
func (p *Point) Valid() bool {
	return p != nil && geo.ValidCoords(p.Lat, p.Lon) == nil
}

// Area is the non-geo location of a booking.
type Area struct {
	Pincode string
	City    string
	State   string
}

func (a Area) empty() bool {
	return strings.TrimSpace(a.Pincode) == "" && strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.State) == ""
}

// Query describes one lookup.
type Query struct {
	CandidateIDs []int64
	Point        *Point
	Area         Area
	Radius       float64
	Limit        int
}

// Result lists technicians in preference order.
type Result struct {
	TechnicianIDs []int64
	Stage         string
	Radius        float64
}

type nearbySearcher interface {
	Nearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]geo.Nearby, error)
}

type areaFilter interface {
	FilterByArea(ctx context.Context, ids []int64, field repo.AreaField, value string) ([]int64, error)
}

// Locator applies progressive radius widening and the area fallback.
type Locator struct {
	index nearbySearcher
	areas areaFilter
}

func New(index nearbySearcher, areas areaFilter) *Locator {
	return &Locator{index: index, areas: areas}
}

// Radii returns the escalating search radii for base.
func Radii(base float64) []float64 {
	return []float64{base, 2 * base, 4 * base}
}

// FindNearby returns candidates near q.Point, widening the radius R, 2R, 4R
// and stopping at the first non-empty attempt. Without a usable point, or when
// every radius is empty, it matches by pincode, then city, then state.
func (l *Locator) FindNearby(ctx context.Context, q Query) (Result, error) {
	if len(q.CandidateIDs) == 0 {
		return Result{Stage: StageNone}, nil
	}
	if q.Point.Valid() && q.Radius > 0 {
		allowed := make(map[int64]struct{}, len(q.CandidateIDs))
		for _, id := range q.CandidateIDs {
			allowed[id] = struct{}{}
		}
		for _, radius := range Radii(q.Radius) {
			// Unbounded; the limit applies after the candidate intersection.
			found, err := l.index.Nearby(ctx, q.Point.Lat, q.Point.Lon, radius, 0)
			if err != nil {
				return Result{}, fmt.Errorf("geo search at %.0fm: %w", radius, err)
			}
			ids := intersect(found, allowed, q.Limit)
			if len(ids) > 0 {
				return Result{TechnicianIDs: ids, Stage: StageRadius, Radius: radius}, nil
			}
		}
	}
	if q.Area.empty() {
		return Result{Stage: StageNone}, nil
	}
	return l.byArea(ctx, q)
}

func (l *Locator) byArea(ctx context.Context, q Query) (Result, error) {
	steps := []struct {
		field repo.AreaField
		value string
		stage string
	}{
		{repo.AreaPincode, q.Area.Pincode, StagePincode},
		{repo.AreaCity, q.Area.City, StageCity},
		{repo.AreaState, q.Area.State, StageState},
	}
	for _, s := range steps {
		if strings.TrimSpace(s.value) == "" {
			continue
		}
		ids, err := l.areas.FilterByArea(ctx, q.CandidateIDs, s.field, s.value)
		if err != nil {
			return Result{}, fmt.Errorf("area match by %s: %w", s.field, err)
		}
		if len(ids) > 0 {
			return Result{TechnicianIDs: capIDs(ids, q.Limit), Stage: s.stage}, nil
		}
	}
	return Result{Stage: StageNone}, nil
}

func intersect(found []geo.Nearby, allowed map[int64]struct{}, limit int) []int64 {
	var ids []int64
	seen := make(map[int64]struct{}, len(found))
	for _, n := range found {
		if _, ok := allowed[n.ID]; !ok {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids
}

func capIDs(ids []int64, limit int) []int64 {
	if limit > 0 && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}
