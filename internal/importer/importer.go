// Package importer loads saved cart lines from CSV into a cart.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

type ProductLookup interface {
	Get(ctx context.Context, id domain.ID) (*domain.Product, error)
}

// Cart is the part of the cart engine the importer drives.
type Cart interface {
	AddItem(ctx context.Context, product domain.Product, period domain.BillingPeriod) error
	UpdateQuantity(ctx context.Context, productID domain.ID, period domain.BillingPeriod, quantity int) error
	Snapshot() cartsvc.State
}

// CSVImporter reads rows of productId,billingPeriod,quantity and adds them
// to a cart. Columns are matched by header name; billingPeriod defaults to
// month and quantity to 1.
type CSVImporter struct {
	reader   *csv.Reader
	products ProductLookup
	cart     Cart
}

func NewCSVImporter(r io.Reader, products ProductLookup, cart Cart) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.Comment = '#'
	return &CSVImporter{
		reader:   csvr,
		products: products,
		cart:     cart,
	}
}

type csvRow struct {
	line      int
	ProductID domain.ID
	Period    domain.BillingPeriod
	Quantity  int
}

// Run adds every row to the cart and returns the number of rows imported.
// It stops at the first row that fails; rows before it stay in the cart.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["productid"]; !ok {
		return 0, &domain.ValidationError{Field: "productId", Reason: "missing column"}
	}

	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)

		row, err := parseRow(record, index, line)
		if err != nil {
			return imported, err
		}
		if row == nil {
			continue
		}
		if err := i.add(ctx, row); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (i *CSVImporter) add(ctx context.Context, row *csvRow) error {
	product, err := i.products.Get(ctx, row.ProductID)
	if err != nil {
		return fmt.Errorf("line %d: look up product %s: %w", row.line, row.ProductID, err)
	}
	if err := i.cart.AddItem(ctx, *product, row.Period); err != nil {
		return fmt.Errorf("line %d: add product %s: %w", row.line, row.ProductID, err)
	}
	if row.Quantity == 1 {
		return nil
	}

	// AddItem contributed one unit on top of whatever the cart already held.
	target := row.Quantity
	for _, l := range i.cart.Snapshot().Lines {
		if l.Matches(row.ProductID, row.Period) {
			target = l.Quantity + row.Quantity - 1
			break
		}
	}
	if err := i.cart.UpdateQuantity(ctx, row.ProductID, row.Period, target); err != nil {
		return fmt.Errorf("line %d: set quantity of %s: %w", row.line, row.ProductID, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int, line int) (*csvRow, error) {
	id := pick(record, index, "productid")
	if id == "" {
		return nil, nil
	}

	row := &csvRow{line: line, ProductID: domain.ID(id), Period: domain.Monthly, Quantity: 1}
	if p := pick(record, index, "billingperiod"); p != "" {
		period, err := domain.ParseBillingPeriod(p)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row.Period = period
	}
	if q := pick(record, index, "quantity"); q != "" {
		qty, err := strconv.Atoi(q)
		if err != nil || qty < 1 {
			return nil, fmt.Errorf("line %d: %w", line, &domain.ValidationError{Field: "quantity", Reason: fmt.Sprintf("invalid value %q", q)})
		}
		row.Quantity = qty
	}
	return row, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
