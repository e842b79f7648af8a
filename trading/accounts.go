package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// CustomerPaymentRequest records money received from a customer, either
// on account or against one of their sales.
type CustomerPaymentRequest struct {
	CustomerID int64
	SaleID     *int64
	Amount     decimal.Decimal // base currency
	Method     string
	Date       time.Time
	Notes      string
}

type PaymentReceipt struct {
	Payment  engine.Payment
	Sale     *engine.Sale // updated sale when paid against one
	Entry    engine.LedgerEntry
	Warnings []string
}

func (s *Service) RecordCustomerPayment(ctx context.Context, req CustomerPaymentRequest) (*PaymentReceipt, error) {
	if ve := engine.First(
		engine.RequiredID("customer_id", req.CustomerID),
		engine.Positive("amount", req.Amount),
		engine.DateNotInFuture("date", req.Date, s.now()),
	); ve != nil {
		return nil, ve
	}

	receipt := &PaymentReceipt{}
	warnings, err := s.run(ctx, "customer_payment", func(tx engine.Tx) error {
		if _, err := tx.GetCustomer(ctx, req.CustomerID); err != nil {
			return mustExist("customer_id", err)
		}

		amount := engine.Round2(req.Amount)
		customerID := req.CustomerID
		payment := engine.Payment{
			SaleID:      req.SaleID,
			CustomerID:  &customerID,
			Amount:      amount,
			Method:      req.Method,
			PaymentDate: engine.DateOnly(req.Date),
			Notes:       req.Notes,
		}

		if req.SaleID != nil {
			sale, err := tx.GetSale(ctx, *req.SaleID)
			if err != nil {
				return mustExist("sale_id", err)
			}
			if sale.CustomerID == nil || *sale.CustomerID != req.CustomerID {
				return engine.Invalid("sale_id", "sale %s does not belong to customer %d", sale.InvoiceNumber, req.CustomerID)
			}
			sale.AmountPaid = engine.Round2(sale.AmountPaid.Add(amount))
			sale.PaymentStatus = engine.PaymentStatusFor(sale.AmountPaid, sale.Total)
			if err := tx.SetSalePayment(ctx, sale.ID, sale.AmountPaid, sale.PaymentStatus); err != nil {
				return err
			}
			receipt.Sale = &sale
		}

		var err error
		payment.ID, err = tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		receipt.Payment = payment

		receipt.Entry, err = engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       engine.CustomerAccount(req.CustomerID),
			Type:          engine.EntryPayment,
			Amount:        amount.Neg(),
			ReferenceType: engine.RefPayment,
			ReferenceID:   payment.ID,
			Date:          payment.PaymentDate,
			Notes:         req.Notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.recordEntries([]engine.LedgerEntry{receipt.Entry})
	s.logger.Info("customer payment recorded",
		"customer_id", req.CustomerID,
		"payment_id", receipt.Payment.ID,
		"amount", receipt.Payment.Amount.StringFixed(2),
		"balance", receipt.Entry.BalanceAfter.StringFixed(2))
	return receipt, nil
}

type SupplierPaymentRequest struct {
	SupplierID int64
	Amount     decimal.Decimal // base currency
	Date       time.Time
	Notes      string
}

// LedgerReceipt is returned by operations that only post one entry.
type LedgerReceipt struct {
	Entry    engine.LedgerEntry
	Warnings []string
}

func (s *Service) RecordSupplierPayment(ctx context.Context, req SupplierPaymentRequest) (*LedgerReceipt, error) {
	if ve := engine.First(
		engine.RequiredID("supplier_id", req.SupplierID),
		engine.Positive("amount", req.Amount),
		engine.DateNotInFuture("date", req.Date, s.now()),
	); ve != nil {
		return nil, ve
	}

	receipt := &LedgerReceipt{}
	warnings, err := s.run(ctx, "supplier_payment", func(tx engine.Tx) error {
		if _, err := tx.GetSupplier(ctx, req.SupplierID); err != nil {
			return mustExist("supplier_id", err)
		}
		var err error
		receipt.Entry, err = engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       engine.SupplierAccount(req.SupplierID),
			Type:          engine.EntrySupplierPayment,
			Amount:        engine.Round2(req.Amount).Neg(),
			ReferenceType: engine.RefSupplierPayment,
			Date:          engine.DateOnly(req.Date),
			Notes:         req.Notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.recordEntries([]engine.LedgerEntry{receipt.Entry})
	s.logger.Info("supplier payment recorded",
		"supplier_id", req.SupplierID,
		"entry_id", receipt.Entry.ID,
		"balance", receipt.Entry.BalanceAfter.StringFixed(2))
	return receipt, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentRequest corrects an account balance with an offsetting entry.
// Amount may be either sign but not zero; a reason is mandatory.
type AdjustmentRequest struct {
	Account engine.Account
	Amount  decimal.Decimal
	Date    time.Time
	Reason  string
}

func (s *Service) AdjustBalance(ctx context.Context, req AdjustmentRequest) (*LedgerReceipt, error) {
	if ve := engine.First(
		engine.RequiredID("account_id", req.Account.ID),
		engine.Required("reason", req.Reason),
		engine.DateNotInFuture("date", req.Date, s.now()),
	); ve != nil {
		return nil, ve
	}
	if engine.Round2(req.Amount).IsZero() {
		return nil, engine.Invalid("amount", "must not be zero")
	}

	receipt := &LedgerReceipt{}
	warnings, err := s.run(ctx, "adjust_balance", func(tx engine.Tx) error {
		if err := accountExists(ctx, tx, req.Account); err != nil {
			return err
		}
		var err error
		receipt.Entry, err = engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       req.Account,
			Type:          engine.EntryAdjustment,
			Amount:        engine.Round2(req.Amount),
			ReferenceType: engine.RefAdjustment,
			Date:          engine.DateOnly(req.Date),
			Notes:         req.Reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.recordEntries([]engine.LedgerEntry{receipt.Entry})
	s.logger.Info("balance adjusted",
		"account", req.Account.String(),
		"amount", receipt.Entry.Amount.StringFixed(2),
		"balance", receipt.Entry.BalanceAfter.StringFixed(2))
	return receipt, nil
}

func accountExists(ctx context.Context, tx engine.Tx, account engine.Account) error {
	switch account.Kind {
	case engine.AccountCustomer:
		_, err := tx.GetCustomer(ctx, account.ID)
		return mustExist("account_id", err)
	case engine.AccountSupplier:
		_, err := tx.GetSupplier(ctx, account.ID)
		return mustExist("account_id", err)
	default:
		return engine.Invalid("account_kind", "must be %q or %q", engine.AccountCustomer, engine.AccountSupplier)
	}
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseRequest struct {
	Category    string
	Amount      decimal.Decimal // base currency
	ExpenseDate time.Time
	SupplierID  *int64
	Description string
}

// CreateExpense records a pending expense. Nothing is posted until it is
// approved.
func (s *Service) CreateExpense(ctx context.Context, req ExpenseRequest) (engine.Expense, error) {
	if ve := engine.First(
		engine.Required("category", req.Category),
		engine.Positive("amount", req.Amount),
		engine.DateNotInFuture("expense_date", req.ExpenseDate, s.now()),
	); ve != nil {
		return engine.Expense{}, ve
	}

	expense := engine.Expense{
		Category:    req.Category,
		Amount:      engine.Round2(req.Amount),
		ExpenseDate: engine.DateOnly(req.ExpenseDate),
		SupplierID:  req.SupplierID,
		Status:      engine.ExpensePending,
		Description: req.Description,
	}
	_, err := s.run(ctx, "create_expense", func(tx engine.Tx) error {
		if req.SupplierID != nil {
			if _, err := tx.GetSupplier(ctx, *req.SupplierID); err != nil {
				return mustExist("supplier_id", err)
			}
		}
		var err error
		expense.ID, err = tx.InsertExpense(ctx, expense)
		return err
	})
	if err != nil {
		return engine.Expense{}, err
	}
	return expense, nil
}

type ExpenseReceipt struct {
	Expense  engine.Expense
	Entry    *engine.LedgerEntry // set when a supplier is attached
	Warnings []string
}

// ApproveExpense marks a pending expense approved and, when it names a
// supplier, posts the amount to the supplier account. Approving twice is
// a ValidationError.
func (s *Service) ApproveExpense(ctx context.Context, expenseID int64) (*ExpenseReceipt, error) {
	if ve := engine.RequiredID("expense_id", expenseID); ve != nil {
		return nil, ve
	}

	receipt := &ExpenseReceipt{}
	warnings, err := s.run(ctx, "approve_expense", func(tx engine.Tx) error {
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if expense.Status != engine.ExpensePending {
			return engine.Invalid("status", "expense %d is already %s", expense.ID, expense.Status)
		}

		at := s.now().UTC()
		if err := tx.MarkExpenseApproved(ctx, expense.ID, at); err != nil {
			return err
		}
		expense.Status = engine.ExpenseApproved
		expense.ApprovedAt = &at
		receipt.Expense = expense

		if expense.SupplierID == nil {
			return nil
		}
		entry, err := engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       engine.SupplierAccount(*expense.SupplierID),
			Type:          engine.EntryExpense,
			Amount:        expense.Amount,
			ReferenceType: engine.RefExpense,
			ReferenceID:   expense.ID,
			Date:          expense.ExpenseDate,
			Notes:         expense.Category,
		})
		if err != nil {
			return err
		}
		receipt.Entry = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	if receipt.Entry != nil {
		s.recordEntries([]engine.LedgerEntry{*receipt.Entry})
	}
	s.logger.Info("expense approved", "expense_id", expenseID, "amount", receipt.Expense.Amount.StringFixed(2))
	return receipt, nil
}
