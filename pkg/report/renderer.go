// Package report turns a statistics snapshot and its day-over-day deltas
// into a markdown document.
package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

const (
	timestampLayout = "2006-01-02 15:04:05 MST"
	ellipsis        = "…"
	notAvailable    = "n/a"
)

// Renderer is a pure function from Input to Document
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer, filling unset options with defaults
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.TitlePrefix == "" {
		opts.TitlePrefix = def.TitlePrefix
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.DisplayTopN <= 0 {
		opts.DisplayTopN = def.DisplayTopN
	}
	if opts.IdentifierWidth < 2 {
		opts.IdentifierWidth = def.IdentifierWidth
	}
	return &Renderer{opts: opts}
}

// Render builds the document. Identical input always yields identical output
func (r *Renderer) Render(in Input) (*Document, error) {
	snap := in.Snapshot
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if err := in.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	doc := &Document{
		Title:      fmt.Sprintf("%s - %s - %s", r.opts.TitlePrefix, sectionTitle(string(snap.ReportType)), snap.Date),
		ReportType: snap.ReportType,
		Date:       snap.Date,
		Degraded:   snap.FailedGroups(),
	}

	p := &page{deltas: indexDeltas(in.Deltas), snap: snap, prev: in.Previous}
	p.header(doc.Title, r.header(in))

	switch snap.ReportType {
	case stats.ReportOverview:
		doc.Severity = in.Thresholds.Classify(snap.Overview.Errors.Total)
		r.overview(p, snap.Overview, doc.Severity)
	case stats.ReportContributors:
		r.contributors(p, snap.Contributors)
	}
	p.unavailable()

	doc.Markdown = p.String()
	return doc, nil
}

func (r *Renderer) header(in Input) []string {
	lines := []string{
		fmt.Sprintf("Report date: **%s**", in.Snapshot.Date),
		fmt.Sprintf("Generated at: %s", in.GeneratedAt.In(r.opts.Location).Format(timestampLayout)),
	}
	if in.BaselineDate != "" {
		lines = append(lines, fmt.Sprintf("Compared with: %s (%s baseline)", in.BaselineDate, in.Baseline))
	}
	return lines
}

func (r *Renderer) overview(p *page, o *stats.OverviewStats, sev Severity) {
	p.section("Fleet", []metricRow{
		shareRow("Account things", stats.GroupAccountThings, o.AccountThingCount, o.TotalThingCount),
		shareRow("Device things", stats.GroupDeviceThings, o.DeviceThingCount, o.TotalThingCount),
		shareRow("Total things", stats.GroupTotalThings, o.TotalThingCount, o.TotalThingCount),
	})

	messages := o.Traffic.ConnectSuccess + o.Traffic.PublishIn + o.Traffic.PublishOut + o.Traffic.Subscribe
	p.section("Traffic", []metricRow{
		shareRow("Connect success", stats.GroupConnectSuccess, o.Traffic.ConnectSuccess, messages),
		shareRow("Publish in", stats.GroupPublishIn, o.Traffic.PublishIn, messages),
		shareRow("Publish out", stats.GroupPublishOut, o.Traffic.PublishOut, messages),
		shareRow("Subscribe", stats.GroupSubscribe, o.Traffic.Subscribe, messages),
	})

	e := o.Errors
	p.section("Errors", []metricRow{
		shareRow("Connect", stats.GroupConnectErrors, e.Connect, e.Total),
		shareRow("Publish", stats.GroupPublishErrors, e.Publish, e.Total),
		shareRow("Subscribe", stats.GroupSubscribeErrors, e.Subscribe, e.Total),
		shareRow("Disconnect", stats.GroupDisconnectErrors, e.Disconnect, e.Total),
		shareRow("Rule", stats.GroupRuleErrors, e.Rule, e.Total),
		shareRow("Total", stats.GroupTotalErrors, e.Total, e.Total),
	})
	p.line(fmt.Sprintf("Error level: %s %s (%s errors)", sev.marker(), sev, humanize.Comma(e.Total)))
	p.blank()

	p.section("Devices", []metricRow{
		{label: "Active devices", path: stats.GroupActiveDevices, value: o.ActiveDevices, noShare: true},
	})
}

func (r *Renderer) contributors(p *page, c *stats.ContributorStats) {
	for _, nr := range c.Reports() {
		p.heading(sectionTitle(nr.Group))
		rep := nr.Report
		if rep.Failed() {
			p.line(fmt.Sprintf("⚠️ Unavailable: %s", rep.Error))
			p.blank()
			continue
		}

		total := p.deltas[nr.Group+".total"]
		unique := p.deltas[nr.Group+".unique"]
		totalChange, totalPct, uniqueChange := signed(total.Delta), percent(total.Percent), signed(unique.Delta)
		if p.baselineGap(nr.Group + ".total") {
			totalChange, totalPct, uniqueChange = notAvailable, notAvailable, notAvailable
		}
		p.line(fmt.Sprintf("Events: %s (%s, %s) · Unique: %s (%s)",
			humanize.Comma(rep.Total), totalChange, totalPct,
			humanize.Comma(rep.Unique), uniqueChange))
		p.blank()

		if len(rep.Records) == 0 {
			p.line("No contributors recorded.")
			p.blank()
			continue
		}

		records := rep.Records
		if len(records) > r.opts.DisplayTopN {
			records = records[:r.opts.DisplayTopN]
		}
		tbl := newTable(table.Row{"#", "Entity", "Origin", "Count", "Share"}, 1, 4, 5)
		for _, rec := range records {
			tbl.AppendRow(table.Row{
				rec.Rank,
				Elide(rec.Entity, r.opts.IdentifierWidth),
				Elide(rec.Origin, r.opts.IdentifierWidth),
				humanize.Comma(rec.Count),
				fmt.Sprintf("%.2f%%", rec.Percent),
			})
		}
		p.table(tbl)
	}
}

// Elide shortens s to at most width runes, marking the cut with an ellipsis
func Elide(s string, width int) string {
	if width <= 0 || len([]rune(s)) <= width {
		return s
	}
	return string([]rune(s)[:width-1]) + ellipsis
}

type metricRow struct {
	label string
	path  string
	value int64
	total int64
	// noShare marks a metric that is not part of any total
	noShare bool
}

func shareRow(label, path string, value, total int64) metricRow {
	return metricRow{label: label, path: path, value: value, total: total}
}

type page struct {
	b       strings.Builder
	deltas  map[string]stats.Delta
	snap    *stats.Snapshot
	prev    *stats.Snapshot
	flagged []string
}

func (p *page) header(title string, lines []string) {
	p.b.WriteString("# " + title + "\n\n")
	for _, l := range lines {
		p.b.WriteString(l + "  \n")
	}
	p.blank()
}

func (p *page) heading(title string) {
	p.b.WriteString("## " + title + "\n\n")
}

func (p *page) line(s string) {
	p.b.WriteString(s + "\n")
}

func (p *page) blank() {
	p.b.WriteString("\n")
}

func (p *page) table(tbl table.Writer) {
	p.b.WriteString(tbl.RenderMarkdown())
	p.b.WriteString("\n\n")
}

func (p *page) section(title string, rows []metricRow) {
	p.heading(title)
	tbl := newTable(table.Row{"Metric", "Value", "Share", "Change", "Change %", "Trend"}, 2, 3, 4, 5)
	for _, row := range rows {
		if reason, ok := p.snap.Unavailable(row.path); ok {
			p.flagged = append(p.flagged, fmt.Sprintf("`%s`: %s", row.path, reason))
			tbl.AppendRow(table.Row{row.label, "unavailable", notAvailable, notAvailable, notAvailable, "⚠️"})
			continue
		}
		d := p.deltas[row.path]
		share := notAvailable
		if !row.noShare {
			share = fmt.Sprintf("%.2f%%", stats.Percentage(row.value, row.total))
		}
		change, changePct, trend := signed(d.Delta), percent(d.Percent), arrow(d.Trend())
		if p.baselineGap(row.path) {
			change, changePct, trend = notAvailable, notAvailable, "⚠️"
		}
		tbl.AppendRow(table.Row{
			row.label,
			humanize.Comma(row.value),
			share,
			change,
			changePct,
			trend,
		})
	}
	p.table(tbl)
}

// baselineGap flags path when the baseline could not supply its value
func (p *page) baselineGap(path string) bool {
	reason, ok := p.prev.LeafUnavailable(path)
	if ok {
		p.flagged = append(p.flagged, fmt.Sprintf("`%s` (baseline %s): %s", path, p.prev.Date, reason))
	}
	return ok
}

func (p *page) unavailable() {
	if len(p.flagged) == 0 {
		return
	}
	p.heading("Unavailable sources")
	for _, f := range p.flagged {
		p.line("- " + f)
	}
}

func (p *page) String() string {
	return strings.TrimRight(p.b.String(), "\n") + "\n"
}

func newTable(header table.Row, rightAligned ...int) table.Writer {
	tbl := table.NewWriter()
	tbl.AppendHeader(header)
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	tbl.SetColumnConfigs(configs)
	return tbl
}

func indexDeltas(deltas []stats.Delta) map[string]stats.Delta {
	m := make(map[string]stats.Delta, len(deltas))
	for _, d := range deltas {
		m[d.Path] = d
	}
	return m
}

func signed(v int64) string {
	if v > 0 {
		return "+" + humanize.Comma(v)
	}
	return humanize.Comma(v)
}

func percent(p *float64) string {
	if p == nil {
		return notAvailable
	}
	return fmt.Sprintf("%+.2f%%", stats.Round2(*p))
}

func arrow(t stats.Trend) string {
	switch t {
	case stats.TrendUp:
		return "▲"
	case stats.TrendDown:
		return "▼"
	default:
		return "–"
	}
}

// sectionTitle turns a camelCase name into a sentence-case heading
func sectionTitle(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case i == 0:
			b.WriteString(strings.ToUpper(string(r)))
		case r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
