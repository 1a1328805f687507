package app

import (
	"fmt"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// buildServices turns the payload into the new service tree of a budget
// whose current tree is current. Services and items that name an ID must
// already belong to the budget and keep it, so that the repository updates
// them in place; those without an ID get a fresh one.
func buildServices(current []domain.Service, in []ServiceInput) ([]domain.Service, error) {
	knownServices := make(map[string]bool)
	knownItems := make(map[string]bool)
	for _, s := range current {
		knownServices[s.ID] = true
		for _, it := range s.Items {
			knownItems[it.ID] = true
		}
	}

	var fields []domain.FieldError
	seen := make(map[string]bool)
	claim := func(path, id string, known map[string]bool) {
		switch {
		case !known[id]:
			fields = append(fields, domain.FieldError{Field: path, Message: "does not belong to this budget"})
		case seen[id]:
			fields = append(fields, domain.FieldError{Field: path, Message: "is used more than once"})
		}
		seen[id] = true
	}

	out := make([]domain.Service, 0, len(in))
	for i, si := range in {
		svc := domain.Service{
			ID:          si.ID,
			CategoryID:  si.CategoryID,
			Description: si.Description,
			Items:       make([]domain.ServiceItem, 0, len(si.Items)),
		}
		if svc.ID != "" {
			claim(fmt.Sprintf("services[%d].id", i), svc.ID, knownServices)
		} else {
			id, err := generateID()
			if err != nil {
				return nil, fmt.Errorf("generating service id: %w", err)
			}
			svc.ID = id
		}

		for j, ii := range si.Items {
			item := domain.ServiceItem{
				ID:                 ii.ID,
				ProductID:          ii.ProductID,
				Description:        ii.Description,
				LongDescription:    ii.LongDescription,
				Quantity:           ii.Quantity,
				Unit:               ii.Unit,
				UnitPrice:          ii.UnitPrice,
				DiscountPercentage: ii.DiscountPercentage,
				TaxPercentage:      ii.TaxPercentage,
			}
			if item.ID != "" {
				claim(fmt.Sprintf("services[%d].items[%d].id", i, j), item.ID, knownItems)
			} else {
				id, err := generateID()
				if err != nil {
					return nil, fmt.Errorf("generating item id: %w", err)
				}
				item.ID = id
			}
			svc.Items = append(svc.Items, item)
		}
		out = append(out, svc)
	}

	if len(fields) > 0 {
		return nil, &domain.ValidationError{Message: "invalid budget", Fields: fields}
	}
	return out, nil
}

// cloneWithNewIDs deep-copies a service tree under fresh identifiers.
func cloneWithNewIDs(in []domain.Service) ([]domain.Service, error) {
	out := domain.CloneServices(in)
	for i := range out {
		id, err := generateID()
		if err != nil {
			return nil, fmt.Errorf("generating service id: %w", err)
		}
		out[i].ID = id
		for j := range out[i].Items {
			if out[i].Items[j].ID, err = generateID(); err != nil {
				return nil, fmt.Errorf("generating item id: %w", err)
			}
		}
	}
	return out, nil
}
