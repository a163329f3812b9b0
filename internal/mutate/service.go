// Package mutate exposes the validated single-record operations on the rate
// tree. Every successful operation archives the pre-mutation snapshot
// through the store's commit, tagged with a reason unique to the operation
// family; failures never partially apply.
package mutate

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"transfer-rates/internal/rates"
	"transfer-rates/internal/slug"
	"transfer-rates/internal/store"
	"transfer-rates/pkg/raterr"
)

// Audit reason tags, one per operation family.
const (
	ReasonAddDestination    = "add-destination"
	ReasonAddState          = "add-state"
	ReasonAddCity           = "add-city"
	ReasonRenameDestination = "rename-destination"
	ReasonRenameState       = "rename-state"
	ReasonRenameCity        = "rename-city"
	ReasonUpdateCityPrice   = "update-city-price"
	ReasonDeleteDestination = "delete-destination"
	ReasonDeleteState       = "delete-state"
	ReasonDeleteCity        = "delete-city"
	ReasonBulkUpload        = "bulk-upload"
)

// Service runs read-validate-commit cycles against a store.
type Service struct {
	store store.Store
}

// NewService returns a mutation service over the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateDestination adds an empty destination keyed by the normalized name.
func (s *Service) CreateDestination(ctx context.Context, name string) (*rates.Tree, error) {
	key, err := requireKey(name, "destination")
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := cur.Destinations[key]; ok {
		return nil, raterr.Conflict("destination %q already exists", key)
	}
	next := cur.Clone()
	next.Destinations[key] = &rates.Destination{Key: key, States: make(map[string]*rates.State)}
	return s.commit(ctx, next, ReasonAddDestination)
}

// CreateState adds an empty state under a destination. The display label
// goes through typo correction before the key is derived, same as ingestion.
func (s *Service) CreateState(ctx context.Context, destKey, name string) (*rates.Tree, error) {
	stateName := slug.CorrectKnownTypo(strings.TrimSpace(name))
	stateKey, err := requireKey(stateName, "state")
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	dest, ok := cur.Destinations[destKey]
	if !ok {
		return nil, raterr.NotFound("destination %q does not exist", destKey)
	}
	if _, ok := dest.States[stateKey]; ok {
		return nil, raterr.Conflict("state %q already exists under %q", stateKey, destKey)
	}
	next := cur.Clone()
	next.Destinations[destKey].States[stateKey] = &rates.State{Key: stateKey, Name: stateName}
	return s.commit(ctx, next, ReasonAddState)
}

// CreateCity appends a city with a positive price. City names are unique
// per state under case-insensitive comparison.
func (s *Service) CreateCity(ctx context.Context, destKey, stateKey, name string, price decimal.Decimal) (*rates.Tree, error) {
	cityName := strings.TrimSpace(name)
	if cityName == "" {
		return nil, raterr.Validation(raterr.CodeMissingLabel, "city name is required")
	}
	if !price.IsPositive() {
		return nil, raterr.Validation(raterr.CodeInvalidPrice, "price must be greater than zero, got %s", price)
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	st, err := findState(cur, destKey, stateKey)
	if err != nil {
		return nil, err
	}
	if st.FindCity(cityName) >= 0 {
		return nil, raterr.Conflict("city %q already exists in %s/%s", cityName, destKey, stateKey)
	}
	next := cur.Clone()
	target := next.Destinations[destKey].States[stateKey]
	target.Cities = append(target.Cities, rates.City{Name: cityName, Price: price})
	return s.commit(ctx, next, ReasonAddCity)
}

// RenameDestination moves a destination under the key derived from newName,
// preserving contents. Renaming onto the unchanged key is a no-op move that
// still commits for the audit trail.
func (s *Service) RenameDestination(ctx context.Context, destKey, newName string) (*rates.Tree, error) {
	newKey, err := requireKey(newName, "destination")
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := cur.Destinations[destKey]; !ok {
		return nil, raterr.NotFound("destination %q does not exist", destKey)
	}
	if newKey != destKey {
		if _, ok := cur.Destinations[newKey]; ok {
			return nil, raterr.Conflict("destination %q already exists", newKey)
		}
	}
	next := cur.Clone()
	dest := next.Destinations[destKey]
	delete(next.Destinations, destKey)
	dest.Key = newKey
	next.Destinations[newKey] = dest
	return s.commit(ctx, next, ReasonRenameDestination)
}

// RenameState moves a state under the key derived from newName within its
// destination and updates the display label.
func (s *Service) RenameState(ctx context.Context, destKey, stateKey, newName string) (*rates.Tree, error) {
	stateName := slug.CorrectKnownTypo(strings.TrimSpace(newName))
	newKey, err := requireKey(stateName, "state")
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := findState(cur, destKey, stateKey); err != nil {
		return nil, err
	}
	next := cur.Clone()
	dest := next.Destinations[destKey]
	st := dest.States[stateKey]
	delete(dest.States, stateKey)
	st.Key = newKey
	st.Name = stateName
	dest.States[newKey] = st
	return s.commit(ctx, next, ReasonRenameState)
}

// RenameCity sets a city's display name. Identity is the case-insensitive
// name match, not a separate key.
func (s *Service) RenameCity(ctx context.Context, destKey, stateKey, cityName, newName string) (*rates.Tree, error) {
	trimmed := strings.TrimSpace(newName)
	if trimmed == "" {
		return nil, raterr.Validation(raterr.CodeMissingLabel, "city name is required")
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := findCity(cur, destKey, stateKey, cityName); err != nil {
		return nil, err
	}
	next := cur.Clone()
	st := next.Destinations[destKey].States[stateKey]
	st.Cities[st.FindCity(cityName)].Name = trimmed
	return s.commit(ctx, next, ReasonRenameCity)
}

// UpdateCityPrice sets a city's price.
func (s *Service) UpdateCityPrice(ctx context.Context, destKey, stateKey, cityName string, newPrice decimal.Decimal) (*rates.Tree, error) {
	if !newPrice.IsPositive() {
		return nil, raterr.Validation(raterr.CodeInvalidPrice, "price must be greater than zero, got %s", newPrice)
	}
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := findCity(cur, destKey, stateKey, cityName); err != nil {
		return nil, err
	}
	next := cur.Clone()
	st := next.Destinations[destKey].States[stateKey]
	st.Cities[st.FindCity(cityName)].Price = newPrice
	return s.commit(ctx, next, ReasonUpdateCityPrice)
}

// DeleteDestination removes a destination subtree.
func (s *Service) DeleteDestination(ctx context.Context, destKey string) (*rates.Tree, error) {
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := cur.Destinations[destKey]; !ok {
		return nil, raterr.NotFound("destination %q does not exist", destKey)
	}
	next := cur.Clone()
	delete(next.Destinations, destKey)
	return s.commit(ctx, next, ReasonDeleteDestination)
}

// DeleteState removes a state subtree.
func (s *Service) DeleteState(ctx context.Context, destKey, stateKey string) (*rates.Tree, error) {
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := findState(cur, destKey, stateKey); err != nil {
		return nil, err
	}
	next := cur.Clone()
	delete(next.Destinations[destKey].States, stateKey)
	return s.commit(ctx, next, ReasonDeleteState)
}

// DeleteCity removes a single city entry.
func (s *Service) DeleteCity(ctx context.Context, destKey, stateKey, cityName string) (*rates.Tree, error) {
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := findCity(cur, destKey, stateKey, cityName); err != nil {
		return nil, err
	}
	next := cur.Clone()
	st := next.Destinations[destKey].States[stateKey]
	idx := st.FindCity(cityName)
	st.Cities = append(st.Cities[:idx], st.Cities[idx+1:]...)
	return s.commit(ctx, next, ReasonDeleteCity)
}

// ReplaceTree commits a freshly ingested tree as the new current snapshot.
// The bulk-upload path calls this once a human has approved the previewed
// delta.
func (s *Service) ReplaceTree(ctx context.Context, newTree *rates.Tree) (*rates.Tree, error) {
	cur, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := newTree.Clone()
	next.Version = cur.Version
	return s.commit(ctx, next, ReasonBulkUpload)
}

func (s *Service) commit(ctx context.Context, next *rates.Tree, reason string) (*rates.Tree, error) {
	if err := s.store.Commit(ctx, next, reason); err != nil {
		return nil, err
	}
	return next, nil
}

func requireKey(name, what string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", raterr.Validation(raterr.CodeMissingLabel, "%s name is required", what)
	}
	key := slug.Normalize(name)
	if key == "" {
		return "", raterr.Validation(raterr.CodeMissingLabel, "%s name %q has no usable characters", what, name)
	}
	return key, nil
}

func findState(t *rates.Tree, destKey, stateKey string) (*rates.State, error) {
	dest, ok := t.Destinations[destKey]
	if !ok {
		return nil, raterr.NotFound("destination %q does not exist", destKey)
	}
	st, ok := dest.States[stateKey]
	if !ok {
		return nil, raterr.NotFound("state %q does not exist under %q", stateKey, destKey)
	}
	return st, nil
}

func findCity(t *rates.Tree, destKey, stateKey, cityName string) (*rates.City, error) {
	st, err := findState(t, destKey, stateKey)
	if err != nil {
		return nil, err
	}
	idx := st.FindCity(cityName)
	if idx < 0 {
		return nil, raterr.NotFound("city %q does not exist in %s/%s", cityName, destKey, stateKey)
	}
	return &st.Cities[idx], nil
}
