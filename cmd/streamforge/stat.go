package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// statSnapshot mirrors the admin API's /v1/stats response.
type statSnapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	Completed          int64   `json:"completed"`
	Failed             int64   `json:"failed"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	BytesLoaded        int64   `json:"bytes_loaded"`
	BytesEvicted       int64   `json:"bytes_evicted"`
	CurrentMemoryUsage int64   `json:"current_memory_usage"`
	PeakMemoryUsage    int64   `json:"peak_memory_usage"`
	Fragmentation      float64 `json:"fragmentation"`
	AvgLoadTime        string  `json:"avg_load_time"`
	PeakLoadTime       string  `json:"peak_load_time"`
	ResidentAssets     int     `json:"resident_assets"`
	QueueDepths        [5]int  `json:"queue_depths"`
}

func newStatCmd() *cobra.Command {
	var addr, token string
	var watch bool
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Show engine counters from a running serve instance",
		RunE: func(_ *cobra.Command, _ []string) error {
			if watch {
				return runWatch(addr, token)
			}
			snap, err := fetchStats(addr, token)
			if err != nil {
				return err
			}
			fmt.Print(renderStats(snap))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8970", "admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the admin API")
	cmd.Flags().BoolVar(&watch, "watch", false, "live-updating dashboard")
	return cmd
}

func fetchStats(addr, token string) (statSnapshot, error) {
	var snap statSnapshot
	req, err := http.NewRequest(http.MethodGet, addr+"/v1/stats", nil)
	if err != nil {
		return snap, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("stat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("stat: admin API returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("stat: decode: %w", err)
	}
	return snap, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	barFull    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	barEmpty   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

// fragBar renders the fragmentation ratio as a fixed-width bar.
func fragBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return barFull.Render(strings.Repeat("█", filled)) +
		barEmpty.Render(strings.Repeat("░", width-filled))
}

func renderStats(s statSnapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("streamforge") + "\n\n")
	b.WriteString(row("requests", fmt.Sprintf("total=%d completed=%d failed=%d", s.TotalRequests, s.Completed, s.Failed)))
	b.WriteString(row("cache", fmt.Sprintf("hits=%d misses=%d", s.CacheHits, s.CacheMisses)))
	b.WriteString(row("bytes", fmt.Sprintf("loaded=%d evicted=%d", s.BytesLoaded, s.BytesEvicted)))
	b.WriteString(row("memory", fmt.Sprintf("used=%d peak=%d", s.CurrentMemoryUsage, s.PeakMemoryUsage)))
	b.WriteString(row("fragmentation", fmt.Sprintf("%s %.1f%%", fragBar(s.Fragmentation, 24), s.Fragmentation*100)))
	b.WriteString(row("load time", fmt.Sprintf("avg=%s peak=%s", s.AvgLoadTime, s.PeakLoadTime)))
	b.WriteString(row("resident", fmt.Sprintf("%d assets", s.ResidentAssets)))
	b.WriteString(row("queues", fmt.Sprintf("crit=%d high=%d norm=%d pre=%d low=%d",
		s.QueueDepths[0], s.QueueDepths[1], s.QueueDepths[2], s.QueueDepths[3], s.QueueDepths[4])))
	return b.String()
}

// dashModel is the bubbletea model behind `stat --watch`.
type dashModel struct {
	addr, token string
	snap        statSnapshot
	err         error
}

type tickMsg time.Time

type snapMsg struct {
	snap statSnapshot
	err  error
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashModel) fetch() tea.Cmd {
	return func() tea.Msg {
		snap, err := fetchStats(m.addr, m.token)
		return snapMsg{snap: snap, err: err}
	}
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())
	case snapMsg:
		m.snap, m.err = msg.snap, msg.err
	}
	return m, nil
}

func (m dashModel) View() string {
	if m.err != nil {
		return titleStyle.Render("streamforge") + "\n\n" + m.err.Error() + "\n\npress q to quit\n"
	}
	return renderStats(m.snap) + "\npress q to quit\n"
}

func runWatch(addr, token string) error {
	p := tea.NewProgram(dashModel{addr: addr, token: token})
	_, err := p.Run()
	return err
}
