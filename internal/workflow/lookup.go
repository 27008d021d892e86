package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/phone"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// oilChange describes catalog services that carry no description.
const oilChange = "Oil change"

// LookupRequest searches a customer's vehicles by phone number. Car narrows
// a multi-vehicle customer down to one vehicle; Tier adds that tier's services.
type LookupRequest struct {
	Phone string
	Car   string
	Tier  string
}

// LookupResult is either the vehicles found or, for a phone number shared by
// several customers, the customers with their vehicle labels.
type LookupResult struct {
	Vehicles []vehicle.Record  `json:"vehicles,omitempty"`
	Accounts []vehicle.Account `json:"accounts,omitempty"`
}

// Lookup finds the vehicles of the customer with the given phone number.
func (r *Runner) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	const name = "lookup"

	digits, err := phone.Normalize(req.Phone)
	if err != nil {
		return nil, r.finish(name, &engine.ValidationError{Op: "phone", Err: err})
	}
	var desc *vehicle.Descriptor
	if strings.TrimSpace(req.Car) != "" {
		d, err := vehicle.ParseDescriptor(req.Car)
		if err != nil {
			return nil, r.finish(name, &engine.ValidationError{Op: "vehicle", Err: err})
		}
		desc = &d
	}

	res := &LookupResult{}
	err = r.withSession(ctx, name, func(s *engine.Session) error {
		if err := s.Start(ctx, digits); err != nil {
			return err
		}
		return lookupVehicles(ctx, s, digits, desc, res)
	})
	if err != nil {
		return nil, r.finish(name, err)
	}

	for i := range res.Vehicles {
		r.enrich(ctx, &res.Vehicles[i], req.Tier)
	}
	return res, r.finish(name, nil)
}

func lookupVehicles(ctx context.Context, s *engine.Session, digits string, desc *vehicle.Descriptor, res *LookupResult) error {
	state, err := s.Settle(ctx)
	if err != nil {
		return err
	}

	switch st := state.(type) {
	case engine.StateSingleResult:
		rec, err := extractVehicle(ctx, s)
		if err != nil {
			return err
		}
		res.Vehicles = append(res.Vehicles, rec)
		return nil

	case engine.StatePopup:
		switch st.Popup.(type) {
		case engine.MultipleVehicles:
			if desc != nil {
				if err := pickVehicle(ctx, s, *desc); err != nil {
					return err
				}
				if err := reachVehicle(ctx, s, nil); err != nil {
					return err
				}
				rec, err := extractVehicle(ctx, s)
				if err != nil {
					return err
				}
				res.Vehicles = append(res.Vehicles, rec)
				return nil
			}
			recs, err := lookupEachVehicle(ctx, s, digits)
			res.Vehicles = append(res.Vehicles, recs...)
			return err
		case engine.MultipleAccounts:
			accounts, err := listAccounts(ctx, s)
			res.Accounts = accounts
			return err
		}
	}
	return stateFailure(state)
}

// lookupEachVehicle extracts every vehicle of a multi-vehicle customer by
// searching again and opening the vehicles one at a time.
func lookupEachVehicle(ctx context.Context, s *engine.Session, digits string) ([]vehicle.Record, error) {
	sel := s.Selectors()
	t := s.Timeouts()
	buttons := browser.Query(sel.CarButtons)

	n, err := s.Driver().Count(ctx, buttons)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fail(KindVehicleNotFound, "vehicles popup lists no vehicle")
	}
	if err := s.Driver().PressKey(ctx, browser.KeyEscape); err != nil {
		return nil, err
	}

	var out []vehicle.Record
	for i := 0; i < n; i++ {
		s.Logger().Info("Extracting vehicle of a multi-vehicle customer.", zap.Int("index", i), zap.Int("count", n))
		if err := s.EnterPhone(ctx, digits); err != nil {
			return out, err
		}
		if err := s.Pause(ctx, 250*time.Millisecond); err != nil {
			return out, err
		}
		if err := s.Click(ctx, "click_vehicle", buttons.Nth(i), t.Default); err != nil {
			return out, err
		}
		if err := reachVehicle(ctx, s, nil); err != nil {
			return out, err
		}
		rec, err := extractVehicle(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
		if err := s.Click(ctx, "previous_step", browser.Query(sel.PreviousStep), t.Default); err != nil {
			return out, err
		}
	}
	return out, nil
}

// listAccounts lists, for every customer row that has vehicles, the customer
// name and the labels of its vehicles.
func listAccounts(ctx context.Context, s *engine.Session) ([]vehicle.Account, error) {
	sel := s.Selectors()
	t := s.Timeouts()
	rows := browser.Query(sel.ClientRows)
	cars := browser.Query(sel.CarsContainer + " " + sel.CarButtons)

	n, err := s.Driver().Count(ctx, rows)
	if err != nil {
		return nil, err
	}
	var out []vehicle.Account
	for i := 0; i < n; i++ {
		row := rows.Nth(i)
		hasCars, err := s.Driver().IsVisible(ctx, row.Find(sel.ClientCarIcon))
		if err != nil {
			return out, err
		}
		if !hasCars {
			continue
		}
		nameLoc := row.Find(sel.ClientName)
		client, err := s.Text(ctx, "read_client_name", nameLoc)
		if err != nil {
			return out, err
		}
		client = strings.TrimSpace(client)
		if client == "" {
			continue
		}
		if err := s.Click(ctx, "open_client", nameLoc, t.Default); err != nil {
			return out, err
		}
		if err := s.Pause(ctx, 500*time.Millisecond); err != nil {
			return out, err
		}

		acct := vehicle.Account{Client: client}
		count, err := s.Driver().Count(ctx, cars)
		if err != nil {
			return out, err
		}
		for j := 0; j < count; j++ {
			label, err := s.Text(ctx, "read_client_vehicle", cars.Nth(j))
			if err != nil {
				return out, err
			}
			if label = strings.TrimSpace(label); label != "" {
				acct.Vehicles = append(acct.Vehicles, label)
			}
		}
		out = append(out, acct)
		if err := s.Driver().PressKey(ctx, browser.KeyEscape); err != nil {
			return out, err
		}
	}
	return out, nil
}

// enrich attaches the bookable services of a vehicle from the catalog,
// falling back to the default service code.
func (r *Runner) enrich(ctx context.Context, rec *vehicle.Record, tier string) {
	defer func() {
		if len(rec.Services) == 0 {
			rec.Services = []vehicle.Service{{Code: r.cfg.Portal().DefaultServiceCode}}
		}
	}()
	if r.catalog == nil {
		return
	}
	logger := r.logger.With(zap.String("vehicle", rec.Descriptor().String()))

	year, err := strconv.Atoi(rec.Year)
	if err != nil {
		logger.Warn("Vehicle year is not numeric; skipping catalog lookup.")
		return
	}
	cylinders := rec.CylinderCount()

	seen := map[string]bool{}
	add := func(svc vehicle.Service) {
		if svc.Code == "" || seen[svc.Code] {
			return
		}
		seen[svc.Code] = true
		rec.Services = append(rec.Services, svc)
	}

	oils, err := r.catalog.OilTypes(ctx, rec.Model, year, rec.IsHybrid, cylinders)
	if err != nil {
		logger.Warn("Oil lookup failed.", zap.Error(err))
	}
	for _, oil := range oils {
		svc, err := r.catalog.ServiceFor(ctx, oil.Oil, oil.SUV, cylinders)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("Service mapping lookup failed.", zap.String("oil", oil.Oil), zap.Error(err))
			continue
		}
		if svc.Description == "" {
			svc.Description = oilChange
		}
		add(svc)
	}

	if tier == "" {
		return
	}
	tiered, err := r.catalog.TierServices(ctx, rec.Model, cylinders, year, tier)
	if err != nil {
		logger.Warn("Tier service lookup failed.", zap.String("tier", tier), zap.Error(err))
		return
	}
	for _, svc := range tiered {
		add(svc)
	}
}
