package xlsxGenerator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate builds a workbook with a portfolio overview sheet and, when
// transactions are present, a sheet with the focused portfolio's
// transaction history. The figures come straight from the cache, no
// recomputation happens here.
func (g *XLSXGenerator) Generate(ctx context.Context, portfolios []model.PortfolioWithStats, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(portfolios) == 0 {
		return nil, "", errors.New("empty portfolios")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillPortfoliosSheet(f, portfolios); err != nil {
		slog.Error("got error while filling portfolios sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if len(transactions) > 0 {
		if err := g.fillTransactionsSheet(f, transactions); err != nil {
			slog.Error("got error while filling transactions sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillPortfoliosSheet(f *excelize.File, portfolios []model.PortfolioWithStats) error {
	const sheetName = "Portfolios"

	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headers := []string{"Name", "Description", "Default", "Total value", "Total invested", "Total P&L", "P&L %", "Positions"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#cfe2f3"}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "H1", styleID); err != nil {
		return err
	}

	for i, p := range portfolios {
		row := i + 2
		values := []any{
			p.Name,
			p.Description,
			p.IsDefault,
			p.TotalValue.InexactFloat64(),
			p.TotalInvested.InexactFloat64(),
			p.TotalPnl.InexactFloat64(),
			p.TotalPnlPercentage.InexactFloat64(),
			p.PositionsCount,
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	return nil
}

func (g *XLSXGenerator) fillTransactionsSheet(f *excelize.File, transactions []model.Transaction) error {
	const sheetName = "Transactions"

	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headers := []string{"Date", "Symbol", "Type", "Quantity", "Price", "Fees", "Total", "Notes"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	for i, t := range transactions {
		row := i + 2
		values := []any{
			t.TransactionDate,
			t.Symbol,
			string(t.Type),
			t.Quantity.InexactFloat64(),
			t.Price.InexactFloat64(),
			t.Fees.InexactFloat64(),
			t.TotalAmount.InexactFloat64(),
			t.Notes,
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	return nil
}
