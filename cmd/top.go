package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"

	"github.com/syntalk/im-server/internal/domain/model"
)

const sparkHistory = 120

func topCmd() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "Live dashboard for a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://127.0.0.1:8080",
				Usage: "Base URL of the server",
			},
			&cli.StringFlag{
				Name:     "token",
				EnvVars:  []string{"IM_ADMIN_TOKEN"},
				Usage:    "Admin bearer token",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 2 * time.Second,
				Usage: "Poll interval",
			},
		},
		Action: func(c *cli.Context) error {
			return runTop(c.Context, c.String("addr"), c.String("token"), c.Duration("interval"))
		},
	}
}

type statusClient struct {
	base   string
	token  string
	client *http.Client
}

func (c *statusClient) fetch(ctx context.Context) (*model.SystemStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/admin/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %s", res.Status)
	}

	var st model.SystemStatus
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

func stateColor(state string) string {
	switch state {
	case model.ComponentUp:
		return "green"
	case model.ComponentStopped:
		return "yellow"
	default:
		return "red"
	}
}

func runTop(ctx context.Context, addr, token string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	client := &statusClient{
		base:   strings.TrimRight(addr, "/"),
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}

	header := widgets.NewParagraph()
	header.Title = "im-server"
	header.Text = "connecting..."

	components := widgets.NewList()
	components.Title = "components"

	counters := widgets.NewList()
	counters.Title = "registry"

	spark := widgets.NewSparkline()
	spark.LineColor = ui.ColorCyan
	spark.Data = []float64{0}
	sparkGroup := widgets.NewSparklineGroup(spark)
	sparkGroup.Title = "connections"

	grid := ui.NewGrid()
	w, h := ui.TerminalDimensions()
	grid.SetRect(0, 0, w, h)
	grid.Set(
		ui.NewRow(0.25,
			ui.NewCol(0.5, header),
			ui.NewCol(0.5, components),
		),
		ui.NewRow(0.35, ui.NewCol(1.0, sparkGroup)),
		ui.NewRow(0.40, ui.NewCol(1.0, counters)),
	)

	history := make([]float64, 0, sparkHistory)

	refresh := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		st, err := client.fetch(fetchCtx)
		cancel()
		if err != nil {
			header.Text = fmt.Sprintf("[unreachable](fg:red) %s\n%v", client.base, err)
			ui.Render(grid)
			return
		}

		uptime := time.Duration(st.UptimeSeconds) * time.Second
		header.Text = fmt.Sprintf("%s %s\nuptime  %s\npolled  %s",
			st.Service, st.Version, uptime, time.Now().Format("15:04:05"))

		components.Rows = []string{
			fmt.Sprintf("database  [%s](fg:%s)", st.Database, stateColor(st.Database)),
			fmt.Sprintf("cache     [%s](fg:%s)", st.Cache, stateColor(st.Cache)),
			fmt.Sprintf("consumer  [%s](fg:%s)", st.Consumer, stateColor(st.Consumer)),
		}

		counters.Rows = []string{
			fmt.Sprintf("online users       %d", st.Hub.TotalUsers),
			fmt.Sprintf("connections        %d", st.Hub.TotalConnections),
			fmt.Sprintf("dropped events     %d", st.Hub.DroppedEvents),
			fmt.Sprintf("swept sessions     %d", st.Hub.SweptSessions),
		}

		if len(history) == sparkHistory {
			history = history[1:]
		}
		history = append(history, float64(st.Hub.TotalConnections))
		spark.Data = history

		ui.Render(grid)
	}

	refresh()

	events := ui.PollEvents()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(grid)
			}
		case <-ticker.C:
			refresh()
		}
	}
}
