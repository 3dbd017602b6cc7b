package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
	"stockflow/internal/domain/reports"
)

var (
	accent  = lipgloss.Color("#D97706")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	passStyle   = lipgloss.NewStyle().Foreground(success).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(warning)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	rationaleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2).
			Width(72)
)

// printer writes either styled text or JSON.
type printer struct {
	w    io.Writer
	json bool
	now  time.Time
}

func (p printer) emit(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// result prints the outcome of a command and returns ErrReported for failures.
func (p printer) result(res allocation.Result, h *allocation.Handle) error {
	if p.json {
		view := map[string]any{"success": res.Success, "message": res.Message}
		if res.Payload != nil {
			view["payload"] = res.Payload
		}
		if h != nil {
			view["handle"] = map[string]any{"id": h.ID, "command": h.Command(), "canUndo": h.CanUndo()}
		}
		if res.Err != nil {
			view["code"] = apperror.CodeOf(res.Err)
		}
		if err := p.emit(view); err != nil {
			return err
		}
	} else if res.Success {
		p.line("%s %s", passStyle.Render("✔"), res.Message)
		if h != nil {
			p.line("  %s", dimStyle.Render("handle "+id.Short(h.ID)+" · undo available"))
		}
	} else {
		p.line("%s %s", failStyle.Render("✘"), res.Message)
		if appErr, ok := apperror.AsAppError(res.Err); ok && len(appErr.Details) > 0 {
			p.line("  %s", dimStyle.Render(formatDetails(appErr.Details)))
		}
	}

	if !res.Success {
		return ErrReported
	}
	return nil
}

// failure prints an error that did not come back as a Result.
func (p printer) failure(err error) error {
	if p.json {
		view := map[string]any{"success": false, "message": err.Error(), "code": apperror.CodeOf(err)}
		if appErr, ok := apperror.AsAppError(err); ok {
			view["message"] = appErr.Message
			view["details"] = appErr.Details
		}
		_ = p.emit(view)
		return ErrReported
	}

	msg := err.Error()
	if appErr, ok := apperror.AsAppError(err); ok {
		msg = appErr.Message
		if len(appErr.Details) > 0 {
			msg += "  " + dimStyle.Render(formatDetails(appErr.Details))
		}
	}
	p.line("%s %s", failStyle.Render("✘"), msg)
	return ErrReported
}

func formatDetails(details map[string]any) string {
	parts := make([]string, 0, len(details))
	for _, k := range slices.Sorted(maps.Keys(details)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func (p printer) selection(sel allocation.Selection) error {
	if p.json {
		return p.emit(sel)
	}

	header := titleStyle.Render(fmt.Sprintf("%s × %s", sel.ProductCode, sel.Requested)) +
		dimStyle.Render("  strategy "+sel.Strategy)
	body := sel.Rationale
	switch {
	case !sel.Found():
		body = warnStyle.Render(body)
	case sel.Partial():
		body += "\n" + warnStyle.Render(fmt.Sprintf("Only %s of %s can be issued from this batch.", sel.Fulfillable, sel.Requested))
	}
	p.line("%s", rationaleBox.Render(header+"\n\n"+body))
	return nil
}

func (p printer) batches(title string, bs []batch.Batch) error {
	if p.json {
		if bs == nil {
			bs = []batch.Batch{}
		}
		return p.emit(bs)
	}
	if len(bs) == 0 {
		p.line("%s", dimStyle.Render("no batches"))
		return nil
	}

	rows := make([][]string, 0, len(bs))
	for i := range bs {
		b := &bs[i]
		rows = append(rows, []string{
			id.Short(b.ID),
			b.ProductCode,
			fmt.Sprintf("%s/%s", b.RemainingQuantity, b.ReceivedQuantity),
			b.PurchasePrice.StringFixed(2),
			b.PurchaseDate.Format(time.DateOnly),
			p.expiryCell(b),
			b.Supplier,
		})
	}
	p.line("%s", titleStyle.Render(title))
	p.line("%s", grid([]string{"ID", "PRODUCT", "LEFT", "PRICE", "PURCHASED", "EXPIRES", "SUPPLIER"}, rows))
	return nil
}

func (p printer) expiryCell(b *batch.Batch) string {
	if b.ExpiryDate == nil {
		return dimStyle.Render("never")
	}
	day := b.ExpiryDate.Format(time.DateOnly)
	switch {
	case b.IsExpired(p.now):
		return failStyle.Render(day + " expired")
	case b.DaysUntilExpiry(p.now) <= 3:
		return warnStyle.Render(fmt.Sprintf("%s (%dd)", day, b.DaysUntilExpiry(p.now)))
	}
	return day
}

func (p printer) channels(b *batch.Batch, cs batch.ChannelStock) error {
	if p.json {
		return p.emit(map[string]any{"batch": b, "channels": cs})
	}
	if err := p.batches("Batch "+id.Short(b.ID), []batch.Batch{*b}); err != nil {
		return err
	}
	p.line("%s", grid([]string{"CHANNEL", "QUANTITY"}, [][]string{
		{string(batch.ChannelPhysical), cs.PhysicalQuantity.String()},
		{string(batch.ChannelOnline), cs.OnlineQuantity.String()},
		{"total", cs.Total().String()},
	}))
	return nil
}

func (p printer) lowStock(r *reports.LowStockReport) error {
	if p.json {
		return p.emit(r)
	}
	p.line("%s", titleStyle.Render(fmt.Sprintf("Low stock (≤ %s)", r.Threshold)))
	if len(r.Items) == 0 {
		p.line("%s", dimStyle.Render("every product is above the threshold"))
		return nil
	}
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		rows = append(rows, []string{it.ProductCode, it.TotalRemaining.String(), fmt.Sprint(it.BatchCount)})
	}
	p.line("%s", grid([]string{"PRODUCT", "REMAINING", "BATCHES"}, rows))
	return nil
}

func (p printer) expiring(r *reports.ExpiringReport) error {
	if p.json {
		return p.emit(r)
	}
	p.line("%s", titleStyle.Render(fmt.Sprintf("Expiring within %d days of %s", r.Days, r.AsOfDate.Format(time.DateOnly))))
	if len(r.Items) == 0 {
		p.line("%s", dimStyle.Render("nothing expiring"))
		return nil
	}
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		left := fmt.Sprintf("%dd", it.DaysLeft)
		if it.Expired {
			left = failStyle.Render("expired")
		} else if it.DaysLeft <= 3 {
			left = warnStyle.Render(left)
		}
		rows = append(rows, []string{
			id.Short(it.BatchID),
			it.ProductCode,
			it.RemainingQuantity.String(),
			it.ExpiryDate.Format(time.DateOnly),
			left,
		})
	}
	p.line("%s", grid([]string{"ID", "PRODUCT", "REMAINING", "EXPIRES", "LEFT"}, rows))
	p.line("%s", dimStyle.Render(fmt.Sprintf("%d batches, %s units at risk", r.TotalItems, r.TotalQuantity)))
	return nil
}

func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}
