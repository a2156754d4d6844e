package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
	"github.com/gwillem/lerobot-ik/pkg/robot"
	"github.com/gwillem/lerobot-ik/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz        int     `long:"hz" description:"Control loop frequency (default from config, else 10)"`
	Leader    bool    `long:"leader" description:"Use the leader arm's pose as the IK target instead of a gamepad"`
	Gamepad   string  `long:"gamepad" description:"Joystick device path (default from config, else /dev/input/js0)"`
	Threshold float64 `long:"threshold" description:"Safety threshold in radians per step (default from config, else 0.5)"`
	LED       int     `long:"led" description:"Lamp intensity channel 0-100, -1 to disable" default:"-1"`
	Model     string  `long:"model" description:"Kinematic chain description file (default: built-in SO-101)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	statusHeight = 2 // pose/solver status line + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - distinct colors for each joint
var jointColors = map[kinematics.Joint]string{
	kinematics.ShoulderPan:  "196", // red
	kinematics.ShoulderLift: "208", // orange
	kinematics.ElbowFlex:    "226", // yellow
	kinematics.WristFlex:    "46",  // green
	kinematics.WristRoll:    "51",  // cyan
	kinematics.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	haltStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type teleopModel struct {
	ctrl      *teleop.Controller
	chart     *streamlinechart.Model
	width     int // terminal width
	height    int // terminal height
	logs      []string
	last      teleop.State
	haveState bool
	quitting  bool
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - statusHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	// Set up data set styles for each joint
	for _, j := range kinematics.Joints() {
		color := jointColors[j]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(j.String(), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := teleop.State(msg)
		m.last = state
		m.haveState = true
		if state.Positions != nil {
			for _, j := range kinematics.Joints() {
				if pos, ok := state.Positions[j.String()+robot.PosSuffix]; ok {
					m.chart.PushDataSet(j.String(), pos)
				}
			}
			m.chart.DrawAll()
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) statusLine() string {
	if !m.haveState {
		return statusStyle.Render("Waiting for first cycle...")
	}
	s := m.last
	if s.Phase == teleop.Halted {
		reason := "halted"
		if s.Error != nil {
			reason = s.Error.Error()
		}
		return haltStyle.Render("HALTED: " + reason)
	}
	conv := "converged"
	if !s.Converged {
		conv = "best-effort"
	}
	return statusStyle.Render(fmt.Sprintf(
		"target (%.3f, %.3f, %.3f) m   ik %s in %d iters, residual %.5f",
		s.Position.X, s.Position.Y, s.Position.Z, conv, s.Iterations, s.Residual))
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("LeRobot IK Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Pose/solver status
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, j := range kinematics.Joints() {
		color := jointColors[j]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		item := colorStyle.Render("━━") + " " + j.String()
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// gamepadDevice picks the joystick path: flag beats config beats the
// default device.
func gamepadDevice(flag, cfg string) string {
	if flag != "" {
		return flag
	}
	if cfg != "" {
		return cfg
	}
	return teleop.DefaultGamepadDevice
}

func (c *TeleoperateCommand) Execute(args []string) error {
	// Load config
	cfg, err := robot.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'lerobot-ik setup' first.")
		os.Exit(1)
	}

	if cfg.Follower.Port == "" {
		fmt.Fprintln(os.Stderr, "Follower arm not configured. Run 'lerobot-ik setup' first.")
		os.Exit(1)
	}
	if !cfg.Follower.IsCalibrated() {
		fmt.Fprintln(os.Stderr, "Follower arm not calibrated. Run 'lerobot-ik setup' first.")
		os.Exit(1)
	}

	fmt.Printf("Loaded configuration from %s\n", robot.DefaultConfigFile)

	tcfg := teleop.Config{
		Frame: "gripper_link",
		Hz:    c.Hz,
		LED:   c.LED,
	}

	// Flags override the config file.
	ctl := cfg.Control
	if tcfg.Hz == 0 {
		tcfg.Hz = ctl.Hz
	}
	tcfg.SafetyThreshold = c.Threshold
	if tcfg.SafetyThreshold == 0 {
		tcfg.SafetyThreshold = ctl.SafetyThreshold
	}
	tcfg.Deadzone = ctl.Deadzone
	tcfg.TranslationSpeed = ctl.TranslationSpeed
	tcfg.RotationSpeed = ctl.RotationSpeed
	if tcfg.LED < 0 && ctl.LED > 0 {
		tcfg.LED = ctl.LED
	}

	modelPath := c.Model
	if modelPath == "" {
		modelPath = ctl.ModelPath
	}
	if modelPath != "" {
		model, err := kinematics.LoadModelFile(modelPath)
		if err != nil {
			log.Fatalf("Failed to load model: %v", err)
		}
		tcfg.Provider = model
	}

	follower, err := robot.NewArm(cfg.Follower.Port, cfg.Follower.Calibration)
	if err != nil {
		log.Fatalf("Failed to connect to follower: %v", err)
	}
	tcfg.Follower = follower

	if c.Leader {
		if cfg.Leader.Port == "" || !cfg.Leader.IsCalibrated() {
			fmt.Fprintln(os.Stderr, "Leader arm not set up. Run 'lerobot-ik setup' (without --follower-only) first.")
			os.Exit(1)
		}
		leader, err := robot.NewArm(cfg.Leader.Port, cfg.Leader.Calibration)
		if err != nil {
			log.Fatalf("Failed to connect to leader: %v", err)
		}
		tcfg.Leader = leader
	} else {
		pad, err := teleop.OpenJoystick(gamepadDevice(c.Gamepad, ctl.GamepadDevice))
		if err != nil {
			log.Fatalf("Failed to open gamepad: %v", err)
		}
		tcfg.Gamepad = pad
	}

	// Create controller
	ctrl, err := teleop.NewController(tcfg)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Close()

	// Start controller in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ctrl.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Controller error: %v", err)
		}
	}()

	// Run TUI
	p := tea.NewProgram(initialTeleopModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	return nil
}
