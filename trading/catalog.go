package trading

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// SHEET TYPES
// =============================================================================

type SheetTypeRequest struct {
	Code         string
	MetalType    string
	Grade        string
	Finish       string
	WidthMM      decimal.Decimal
	LengthMM     decimal.Decimal
	ThicknessMM  decimal.Decimal
	WeightPerSqm decimal.Decimal
	IsRemnant    bool
	ParentID     *int64 // required for remnants
}

// CreateSheetType defines a material. A remnant must name an existing
// parent sheet type.
func (s *Service) CreateSheetType(ctx context.Context, req SheetTypeRequest) (engine.SheetType, error) {
	if ve := engine.First(
		engine.Required("code", req.Code),
		engine.Required("metal_type", req.MetalType),
		engine.Positive("width_mm", req.WidthMM),
		engine.Positive("length_mm", req.LengthMM),
		engine.Positive("thickness_mm", req.ThicknessMM),
		engine.NonNegative("weight_per_sqm", req.WeightPerSqm),
	); ve != nil {
		return engine.SheetType{}, ve
	}
	if req.IsRemnant && req.ParentID == nil {
		return engine.SheetType{}, engine.Invalid("parent_sheet_id", "a remnant must reference its parent sheet type")
	}
	if !req.IsRemnant && req.ParentID != nil {
		return engine.SheetType{}, engine.Invalid("parent_sheet_id", "only remnants have a parent sheet type")
	}

	sheet := engine.SheetType{
		Code:         strings.TrimSpace(req.Code),
		MetalType:    req.MetalType,
		Grade:        req.Grade,
		Finish:       req.Finish,
		WidthMM:      req.WidthMM,
		LengthMM:     req.LengthMM,
		ThicknessMM:  req.ThicknessMM,
		WeightPerSqm: req.WeightPerSqm,
		IsRemnant:    req.IsRemnant,
		ParentID:     req.ParentID,
	}
	_, err := s.run(ctx, "create_sheet_type", func(tx engine.Tx) error {
		if req.ParentID != nil {
			if _, err := tx.GetSheetType(ctx, *req.ParentID); err != nil {
				return mustExist("parent_sheet_id", err)
			}
		}
		var err error
		sheet.ID, err = tx.InsertSheetType(ctx, sheet)
		return err
	})
	if err != nil {
		return engine.SheetType{}, err
	}
	return sheet, nil
}

// BackfillSheetWeight records the weight per square metre of a sheet type
// created without one. A weight that is already set is never changed,
// since batch costs and past COGS were derived from it.
func (s *Service) BackfillSheetWeight(ctx context.Context, sheetTypeID int64, weightPerSqm decimal.Decimal) (engine.SheetType, error) {
	if ve := engine.First(
		engine.RequiredID("sheet_type_id", sheetTypeID),
		engine.Positive("weight_per_sqm", weightPerSqm),
	); ve != nil {
		return engine.SheetType{}, ve
	}

	var sheet engine.SheetType
	_, err := s.run(ctx, "backfill_sheet_weight", func(tx engine.Tx) error {
		var err error
		sheet, err = tx.GetSheetType(ctx, sheetTypeID)
		if err != nil {
			return err
		}
		if sheet.WeightPerSqm.IsPositive() {
			return engine.Invalid("weight_per_sqm", "sheet type %s already has a weight of %s kg/m2", sheet.Code, sheet.WeightPerSqm)
		}
		if err := tx.SetSheetWeight(ctx, sheet.ID, weightPerSqm); err != nil {
			return err
		}
		sheet.WeightPerSqm = weightPerSqm
		return nil
	})
	if err != nil {
		return engine.SheetType{}, err
	}
	return sheet, nil
}

// DeleteSheetType removes an unused sheet type. One still referenced by
// batches, sale items or remnants fails with a ConstraintError.
func (s *Service) DeleteSheetType(ctx context.Context, sheetTypeID int64) error {
	if ve := engine.RequiredID("sheet_type_id", sheetTypeID); ve != nil {
		return ve
	}
	_, err := s.run(ctx, "delete_sheet_type", func(tx engine.Tx) error {
		return tx.DeleteSheetType(ctx, sheetTypeID)
	})
	return err
}

func (s *Service) ListSheetTypes(ctx context.Context) ([]engine.SheetType, error) {
	var sheets []engine.SheetType
	err := s.view(ctx, "list sheet types", func(tx engine.Tx) error {
		var err error
		sheets, err = tx.ListSheetTypes(ctx)
		return err
	})
	return sheets, err
}

// =============================================================================
// SERVICE TYPES, CUSTOMERS, SUPPLIERS
// =============================================================================

func (s *Service) CreateServiceType(ctx context.Context, name string, defaultCost decimal.Decimal) (engine.ServiceType, error) {
	if ve := engine.First(
		engine.Required("name", name),
		engine.NonNegative("default_cost", defaultCost),
	); ve != nil {
		return engine.ServiceType{}, ve
	}

	service := engine.ServiceType{Name: strings.TrimSpace(name), DefaultCost: engine.Round2(defaultCost)}
	_, err := s.run(ctx, "create_service_type", func(tx engine.Tx) error {
		var err error
		service.ID, err = tx.InsertServiceType(ctx, service)
		return err
	})
	if err != nil {
		return engine.ServiceType{}, err
	}
	return service, nil
}

func (s *Service) CreateCustomer(ctx context.Context, name, phone string) (engine.Customer, error) {
	if ve := engine.Required("name", name); ve != nil {
		return engine.Customer{}, ve
	}

	customer := engine.Customer{Name: strings.TrimSpace(name), Phone: phone}
	_, err := s.run(ctx, "create_customer", func(tx engine.Tx) error {
		var err error
		customer.ID, err = tx.InsertCustomer(ctx, customer)
		return err
	})
	if err != nil {
		return engine.Customer{}, err
	}
	return customer, nil
}

func (s *Service) CreateSupplier(ctx context.Context, name, phone string) (engine.Supplier, error) {
	if ve := engine.Required("name", name); ve != nil {
		return engine.Supplier{}, ve
	}

	supplier := engine.Supplier{Name: strings.TrimSpace(name), Phone: phone}
	_, err := s.run(ctx, "create_supplier", func(tx engine.Tx) error {
		var err error
		supplier.ID, err = tx.InsertSupplier(ctx, supplier)
		return err
	})
	if err != nil {
		return engine.Supplier{}, err
	}
	return supplier, nil
}
