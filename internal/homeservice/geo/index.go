package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// OnlineKey holds positions of every online technician.
const OnlineKey = "technicians:online"

// Logger is the subset of logging the index needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Nearby is a technician returned from a GEO search.
type Nearby struct {
	ID   int64
	Dist float64
	Lon  float64
	Lat  float64
}

// TechnicianIndex keeps technician positions in a Redis GEO set.
type TechnicianIndex struct {
	rdb    redis.UniversalClient
	logger Logger
}

// NewTechnicianIndex creates an index.
func NewTechnicianIndex(rdb redis.UniversalClient, logger Logger) *TechnicianIndex {
	return &TechnicianIndex{rdb: rdb, logger: logger}
}

func memberName(technicianID int64) string {
	return fmt.Sprintf("technician:%d", technicianID)
}

func parseMember(member string) (int64, error) {
	parts := strings.Split(member, ":")
	if len(parts) != 2 || parts[0] != "technician" {
		return 0, fmt.Errorf("invalid member %q", member)
	}
	return strconv.ParseInt(parts[1], 10, 64)
}

// ValidCoords rejects out-of-range and null-island coordinates.
func ValidCoords(lat, lon float64) error {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid coords lon=%.8f lat=%.8f", lon, lat)
	}
	if math.Abs(lon) < 1e-4 && math.Abs(lat) < 1e-4 {
		return fmt.Errorf("near-zero coords lon=%.8f lat=%.8f", lon, lat)
	}
	return nil
}

// Update stores the technician position.
func (x *TechnicianIndex) Update(ctx context.Context, technicianID int64, lat, lon float64) error {
	if err := ValidCoords(lat, lon); err != nil {
		return err
	}
	return x.rdb.GeoAdd(ctx, OnlineKey, &redis.GeoLocation{
		Name:      memberName(technicianID),
		Longitude: lon,
		Latitude:  lat,
	}).Err()
}

// Remove drops the technician from the index.
func (x *TechnicianIndex) Remove(ctx context.Context, technicianID int64) error {
	return x.rdb.ZRem(ctx, OnlineKey, memberName(technicianID)).Err()
}

// Nearby returns technicians within radius sorted by distance ascending.
// limit <= 0 means unbounded.
func (x *TechnicianIndex) Nearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]Nearby, error) {
	if limit < 0 {
		limit = 0
	}
	res, err := x.rdb.GeoSearchLocation(ctx, OnlineKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Nearby, 0, len(res))
	for _, item := range res {
		id, err := parseMember(item.Name)
		if err != nil {
			x.logger.Errorf("geo nearby: skip member: %v", err)
			continue
		}
		out = append(out, Nearby{ID: id, Dist: item.Dist, Lon: item.Longitude, Lat: item.Latitude})
	}
	return out, nil
}
