package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/report"
)

// maxOffendingShown caps the IDs printed per outcome in a summary.
const maxOffendingShown = 20

// RenderReport writes a batch summary. With verbose set every item is
// listed, otherwise only the IDs of items that were not applied.
func RenderReport(w io.Writer, r *engine.Report, verbose bool) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Run:      %s\n", r.RunID)
	fmt.Fprintf(&b, "Kind:     %s\n", r.Kind)
	fmt.Fprintf(&b, "Scope:    %s\n", r.Scope)
	if r.Checkpoint != "" {
		fmt.Fprintf(&b, "Snapshot: %s\n", r.Checkpoint)
	}
	if r.Passes > 0 {
		fmt.Fprintf(&b, "Passes:   %d\n", r.Passes)
	}
	fmt.Fprintf(&b, "Duration: %s\n\n", r.Duration.Round(time.Millisecond))

	for _, o := range model.Outcomes {
		n := r.Counts[o]
		if n == 0 && o != model.OutcomeApplied {
			continue
		}
		line := fmt.Sprintf("  • %-20s %d", o, n)
		if ids := r.Offending[o]; len(ids) > 0 {
			line += SubtleStyle.Render("  " + formatIDs(ids))
		}
		b.WriteString(OutcomeStyle(o).Render(line) + "\n")
	}

	title := "Batch Complete"
	if r.DryRun {
		title = "Dry Run (nothing written)"
	}
	if _, err := fmt.Fprintln(w, RenderBox(title, strings.TrimRight(b.String(), "\n"))); err != nil {
		return err
	}

	if verbose {
		return RenderItems(w, r.Items)
	}
	return nil
}

// RenderItems writes one row per item result.
func RenderItems(w io.Writer, items []model.ItemResult) error {
	if len(items) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("PRODUCT", "OUTCOME", "OLD", "NEW", "DETAIL"))
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			it.ProductID,
			it.Outcome,
			placementText(it.Old),
			newText(it),
			detailText(it))
	}
	return tw.Flush()
}

// RenderRuns writes the run history table.
func RenderRuns(w io.Writer, runs []model.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, SubtitleStyle.Render("No runs recorded."))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("ID", "KIND", "STARTED", "APPLIED", "STATUS", "SCOPE"))
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Counts[model.OutcomeApplied],
			runStatus(run),
			run.Scope)
	}
	return tw.Flush()
}

// RenderRun writes one run with its mutation log.
func RenderRun(w io.Writer, run *model.Run) error {
	fmt.Fprintf(w, "%s %s\n", BoldStyle.Render("Run"), run.ID)
	fmt.Fprintf(w, "  Kind:    %s\n", run.Kind)
	fmt.Fprintf(w, "  Scope:   %s\n", run.Scope)
	fmt.Fprintf(w, "  Started: %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "  Status:  %s\n", runStatus(*run))
	if run.RevertsRun != nil {
		fmt.Fprintf(w, "  Reverts: %s\n", *run.RevertsRun)
	}

	var counts []string
	for _, o := range model.Outcomes {
		if n := run.Counts[o]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(counts) > 0 {
		fmt.Fprintf(w, "  Counts:  %s\n", strings.Join(counts, " "))
	}

	if len(run.Mutations) == 0 {
		_, err := fmt.Fprintln(w, SubtleStyle.Render("\nNo mutations."))
		return err
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("#", "PRODUCT", "KIND", "BEFORE", "AFTER", "REASON"))
	for _, m := range run.Mutations {
		before, after := mutationValues(m)
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", m.ID, m.ProductID, m.Kind, before, after, m.Reason)
	}
	return tw.Flush()
}

// RenderListing writes one page of a cleanup report.
func RenderListing(w io.Writer, l *report.Listing) error {
	if len(l.Products) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess(fmt.Sprintf("No %s products.", l.Kind)))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("ID", "NAME", "BRAND", "CATEGORY"))
	for _, p := range l.Products {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, dash(p.BrandName()), dash(p.Placement().String()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	footer := fmt.Sprintf("\n%d of %d %s products", len(l.Products), l.Total, l.Kind)
	if l.NextAfter > 0 {
		footer += fmt.Sprintf(" (next page: --after %d)", l.NextAfter)
	}
	_, err := fmt.Fprintln(w, SubtleStyle.Render(footer))
	return err
}

// RenderRules writes the rules of a rule set in declaration order.
func RenderRules(w io.Writer, rs *classify.RuleSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("PRIORITY", "NAME", "TYPE", "TRIGGERS", "TARGET"))
	for _, r := range rs.Rules {
		triggers := r.Include
		if r.Type == model.RuleTypeBrand {
			triggers = r.Brands
		}
		target := r.Target.String()
		if r.When != nil {
			target = r.When.String() + " → " + target
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.Priority, r.Name, r.Type, truncate(strings.Join(triggers, ","), 40), target)
	}
	return tw.Flush()
}

// RenderTaxonomy writes the category tree.
func RenderTaxonomy(w io.Writer, categories []model.Category) error {
	for _, c := range categories {
		if _, err := fmt.Fprintln(w, BoldStyle.Render(c.Name)); err != nil {
			return err
		}
		for _, sub := range c.Subcategories {
			if _, err := fmt.Fprintf(w, "  • %s\n", sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func header(cols ...string) string {
	rendered := make([]string, len(cols))
	for i, c := range cols {
		rendered[i] = TableHeaderStyle.Render(c)
	}
	return strings.Join(rendered, "\t")
}

func runStatus(run model.Run) string {
	switch {
	case run.RevertedAt != nil:
		return "reverted"
	case run.DryRun:
		return "dry-run"
	case run.FinishedAt == nil:
		return "unfinished"
	default:
		return "done"
	}
}

func mutationValues(m model.Mutation) (before, after string) {
	if m.Kind == model.MutationImage {
		if p := model.PrimaryImage(m.OldImages); p != nil {
			before = p.URL
		}
		return dash(before), dash(m.NewImageURL)
	}
	return placementText(m.OldPlacement), placementText(m.NewPlacement)
}

func placementText(p *model.Placement) string {
	if p == nil {
		return "-"
	}
	return dash(p.String())
}

func newText(it model.ItemResult) string {
	if it.ImageURL != "" {
		return it.ImageURL
	}
	return placementText(it.New)
}

func detailText(it model.ItemResult) string {
	switch {
	case it.Error != "":
		return it.Error
	case it.Score > 0:
		return "score " + strconv.Itoa(it.Score)
	default:
		return it.Rule
	}
}

func formatIDs(ids []int64) string {
	shown := ids
	if len(shown) > maxOffendingShown {
		shown = shown[:maxOffendingShown]
	}
	parts := make([]string, len(shown))
	for i, id := range shown {
		parts[i] = strconv.FormatInt(id, 10)
	}
	s := strings.Join(parts, ",")
	if extra := len(ids) - len(shown); extra > 0 {
		s += fmt.Sprintf(" +%d more", extra)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
