package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bc-dunia/agentmon/internal/api"
	"github.com/bc-dunia/agentmon/internal/config"
	"github.com/bc-dunia/agentmon/internal/monitor"
	"github.com/bc-dunia/agentmon/internal/otel"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitoring status of a running server",
		Long:  "Queries a running agentmon server and prints per-agent usage, latency and alerts.",
		RunE:  runStatus,
	}
	cmd.Flags().String("address", "127.0.0.1:8088", "agentmon server address")
	cmd.Flags().String("agent", "", "show active alerts for one agent")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	agent, _ := cmd.Flags().GetString("agent")
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	tracer := statusTracer(ctx)
	defer func() { _ = tracer.Shutdown(context.Background()) }()
	c := newAPIClient(addr, tracer)

	var platform api.PlatformResponse
	if err := c.getJSON(ctx, "/api/v1/status", &platform); err != nil {
		if dial, _ := amerr.FieldsOf(err)["dial"].(bool); dial {
			_, _ = fmt.Fprintf(out, "agentmon at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}
	printPlatform(out, addr, platform)

	if agent == "" {
		return nil
	}
	var alerts api.AlertsResponse
	if err := c.getJSON(ctx, "/api/v1/agents/"+url.PathEscape(agent)+"/alerts?state=active", &alerts); err != nil {
		return err
	}
	printAlerts(out, agent, alerts.Alerts)
	return nil
}

// statusTracer builds the tracer from AGENTMON_* settings so status requests
// join the server's traces. Unusable settings fall back to a noop tracer.
func statusTracer(ctx context.Context) *otel.Tracer {
	cfg, err := config.Load("")
	if err != nil {
		return otel.NoopTracer()
	}
	tracer, err := newTracer(ctx, cfg)
	if err != nil {
		return otel.NoopTracer()
	}
	return tracer
}

func printPlatform(out io.Writer, addr string, p api.PlatformResponse) {
	h := p.Host
	_, _ = fmt.Fprintf(out, "agentmon at %s, reported %s\n", addr, humanize.Time(p.Platform.Timestamp))
	_, _ = fmt.Fprintf(out, "host: cpu %s%%, memory %s / %s (%s%%), pid %d rss %s\n",
		humanize.FtoaWithDigits(h.CPUPercent, 1),
		humanize.Bytes(h.MemUsed), humanize.Bytes(h.MemTotal),
		humanize.FtoaWithDigits(h.MemoryPercent, 1),
		h.PID, humanize.Bytes(h.ProcessMemRSS))
	_, _ = fmt.Fprintf(out, "alerts: %s active of %s\n\n",
		humanize.Comma(int64(p.Platform.ActiveAlerts)), humanize.Comma(int64(p.Platform.TotalAlerts)))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "AGENT\tREQUESTS\tAVG LATENCY\tGRADE\tALERTS\tMONITORING")
	for _, st := range p.Platform.Agents {
		perf := st.LatencyMonitoring.CurrentPerformance
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%ss\t%s\t%d/%d\t%s\n",
			st.Agent,
			humanize.Comma(int64(st.UsageMonitoring.TotalRequestsTracked)),
			humanize.FtoaWithDigits(perf.AvgLatency, 3),
			perf.PerformanceGrade,
			st.AlertSystem.ActiveAlerts, st.AlertSystem.TotalAlerts,
			onOff(st.AlertSystem.Active),
		)
	}
	_ = tw.Flush()
}

func printAlerts(out io.Writer, agent string, alerts []monitor.Alert) {
	_, _ = fmt.Fprintf(out, "\nactive alerts for %s: %d\n", agent, len(alerts))
	if len(alerts) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSEVERITY\tTYPE\tTITLE\tRAISED")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Severity, a.Type, strconv.Quote(a.Title), humanize.RelTime(a.Timestamp, time.Now(), "ago", "from now"))
	}
	_ = tw.Flush()
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}
