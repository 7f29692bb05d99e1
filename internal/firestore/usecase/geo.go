package usecase

import (
	"context"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/service"

	"golang.org/x/sync/errgroup"
)

// DefaultRadiusLimit caps each geohash range query of GetInRadius.
const DefaultRadiusLimit = 5

// GetInRadius returns documents whose location lies within radiusM meters of center
// ([lat, lng]). Documents must store a model.Location under "location". One query runs
// per geohash range, each limited to maxLimit documents, and false positives are
// dropped by distance.
func GetInRadius[T any](ctx context.Context, c *Client, collection model.Queryable[T], center [2]float64, radiusM float64, maxLimit int) ([]model.Doc[T], error) {
	if err := service.ValidateLocation(center[0], center[1]); err != nil {
		return nil, err
	}
	if maxLimit <= 0 {
		maxLimit = DefaultRadiusLimit
	}
	bounds := service.GeohashQueryBounds(center[0], center[1], radiusM)

	type result struct {
		docs []model.Doc[T]
		locs []model.Location
	}
	results := make([]result, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			docs, snaps, err := runQuery(gctx, c, collection, []model.Constraint{
				model.OrderPath(model.LocationField, model.Asc, model.StartAt(b.Start), model.EndAt(b.End)),
				model.Limit(maxLimit),
			})
			if err != nil {
				return err
			}
			locs := make([]model.Location, len(snaps))
			for j, snap := range snaps {
				locs[j] = locationOf(snap.Data)
			}
			results[i] = result{docs: docs, locs: locs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var matching []model.Doc[T]
	for _, r := range results {
		for j, doc := range r.docs {
			loc := r.locs[j]
			if service.DistanceKm(loc.Lat, loc.Lng, center[0], center[1])*1000 <= radiusM {
				matching = append(matching, doc)
			}
		}
	}
	return matching, nil
}

func locationOf(data map[string]any) model.Location {
	var loc model.Location
	if v, ok := service.ValueAt(data, []string{"location", "lat"}); ok {
		loc.Lat, _ = service.AsFloat(v)
	}
	if v, ok := service.ValueAt(data, []string{"location", "lng"}); ok {
		loc.Lng, _ = service.AsFloat(v)
	}
	if v, ok := service.ValueAt(data, model.LocationField); ok {
		loc.Geohash, _ = v.(string)
	}
	return loc
}

// Geohash builds the location value writers store for radius queries.
func Geohash(lat, lng float64) model.Location {
	return service.GeohashLocation(lat, lng, 0)
}
